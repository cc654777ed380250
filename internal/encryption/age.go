// Package encryption seals index snapshots with filippo.io/age, either to
// X25519 recipients or to a passphrase.
package encryption

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"filippo.io/age"
)

// ageHeader starts every binary age file.
const ageHeader = "age-encryption.org/"

// ErrPassphraseRequired is returned when an identity file is passphrase
// protected and no passphrase source was given.
var ErrPassphraseRequired = errors.New("identity file is passphrase protected")

// PassphraseFunc supplies a passphrase on demand.
type PassphraseFunc func() (string, error)

// Keys is an X25519 key pair on disk. The recipient file is plaintext; the
// identity file is encrypted with a passphrase using age's scrypt recipient.
type Keys struct {
	RecipientPath string
	IdentityPath  string
}

// Generate creates a new key pair and writes both files. Existing files are
// not overwritten.
func (k Keys) Generate(passphrase string) error {
	for _, p := range []string{k.RecipientPath, k.IdentityPath} {
		if _, err := os.Stat(p); err == nil {
			return fmt.Errorf("key file already exists at %s", p)
		}
	}

	identity, err := age.GenerateX25519Identity()
	if err != nil {
		return fmt.Errorf("generating key pair: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(k.RecipientPath), 0o700); err != nil {
		return fmt.Errorf("creating recipient directory: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(k.IdentityPath), 0o700); err != nil {
		return fmt.Errorf("creating identity directory: %w", err)
	}

	if err := os.WriteFile(k.RecipientPath, []byte(identity.Recipient().String()+"\n"), 0o644); err != nil {
		return fmt.Errorf("writing recipient: %w", err)
	}

	f, err := os.OpenFile(k.IdentityPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return fmt.Errorf("creating identity file: %w", err)
	}
	defer f.Close()

	recipient, err := age.NewScryptRecipient(passphrase)
	if err != nil {
		return fmt.Errorf("creating scrypt recipient: %w", err)
	}
	if err := Encrypt(bytes.NewReader([]byte(identity.String()+"\n")), f, recipient); err != nil {
		return fmt.Errorf("writing identity: %w", err)
	}
	return f.Close()
}

// LoadRecipients parses an age recipients file, one recipient per line.
func LoadRecipients(path string) ([]age.Recipient, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening recipients file: %w", err)
	}
	defer f.Close()

	recipients, err := age.ParseRecipients(f)
	if err != nil {
		return nil, fmt.Errorf("parsing recipients in %s: %w", path, err)
	}
	return recipients, nil
}

// LoadIdentities parses an age identities file. Plaintext files, as written
// by age-keygen, are read directly. A passphrase protected file, as written
// by Keys.Generate, is unlocked with the passphrase from ask.
func LoadIdentities(path string, ask PassphraseFunc) ([]age.Identity, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading identity file: %w", err)
	}

	if bytes.HasPrefix(data, []byte(ageHeader)) {
		if ask == nil {
			return nil, ErrPassphraseRequired
		}
		passphrase, err := ask()
		if err != nil {
			return nil, err
		}
		identity, err := age.NewScryptIdentity(passphrase)
		if err != nil {
			return nil, fmt.Errorf("creating scrypt identity: %w", err)
		}
		var plain bytes.Buffer
		if err := Decrypt(bytes.NewReader(data), &plain, identity); err != nil {
			return nil, fmt.Errorf("unlocking identity file: %w", err)
		}
		data = plain.Bytes()
	}

	identities, err := age.ParseIdentities(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("parsing identities in %s: %w", path, err)
	}
	return identities, nil
}

// PassphraseRecipient encrypts to a passphrase. It must be the only recipient.
func PassphraseRecipient(passphrase string) (age.Recipient, error) {
	r, err := age.NewScryptRecipient(passphrase)
	if err != nil {
		return nil, fmt.Errorf("creating scrypt recipient: %w", err)
	}
	return r, nil
}

// PassphraseIdentity decrypts files encrypted by PassphraseRecipient.
func PassphraseIdentity(passphrase string) (age.Identity, error) {
	id, err := age.NewScryptIdentity(passphrase)
	if err != nil {
		return nil, fmt.Errorf("creating scrypt identity: %w", err)
	}
	return id, nil
}

// Encrypt reads plaintext from r and writes age ciphertext to w.
func Encrypt(r io.Reader, w io.Writer, recipients ...age.Recipient) error {
	encWriter, err := age.Encrypt(w, recipients...)
	if err != nil {
		return fmt.Errorf("creating encrypted writer: %w", err)
	}
	if _, err := io.Copy(encWriter, r); err != nil {
		return fmt.Errorf("encrypting data: %w", err)
	}
	if err := encWriter.Close(); err != nil {
		return fmt.Errorf("finalizing encryption: %w", err)
	}
	return nil
}

// Decrypt reads age ciphertext from r and writes plaintext to w.
func Decrypt(r io.Reader, w io.Writer, identities ...age.Identity) error {
	decReader, err := age.Decrypt(r, identities...)
	if err != nil {
		return fmt.Errorf("creating decrypted reader: %w", err)
	}
	if _, err := io.Copy(w, decReader); err != nil {
		return fmt.Errorf("decrypting data: %w", err)
	}
	return nil
}

// EncryptFile writes an encrypted copy of src to dst.
func EncryptFile(src, dst string, recipients ...age.Recipient) error {
	return transformFile(src, dst, func(r io.Reader, w io.Writer) error {
		return Encrypt(r, w, recipients...)
	})
}

// DecryptFile writes a decrypted copy of src to dst.
func DecryptFile(src, dst string, identities ...age.Identity) error {
	return transformFile(src, dst, func(r io.Reader, w io.Writer) error {
		return Decrypt(r, w, identities...)
	})
}

// IsEncrypted reports whether the file at path starts with an age header.
func IsEncrypted(path string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, err
	}
	defer f.Close()

	head, err := bufio.NewReader(f).Peek(len(ageHeader))
	if err != nil && !errors.Is(err, io.EOF) {
		return false, err
	}
	return bytes.Equal(head, []byte(ageHeader)), nil
}

// transformFile streams src through fn into a temp file next to dst and
// renames it into place once fn succeeds.
func transformFile(src, dst string, fn func(io.Reader, io.Writer) error) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("opening %s: %w", src, err)
	}
	defer in.Close()

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := fn(bufio.NewReader(in), tmp); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmpName, dst); err != nil {
		return fmt.Errorf("renaming to %s: %w", dst, err)
	}
	return nil
}
