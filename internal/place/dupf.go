package place

import (
	"fmt"
	"slices"
	"strings"
)

// DuplicateGroup is a set of files sharing one content hash.
type DuplicateGroup struct {
	Hash  string
	Paths []string
}

// FindDuplicates hashes every file under root and returns the groups with more
// than one member, ordered by hash.
func FindDuplicates(fs FileSystem, root string, logger Logger) ([]DuplicateGroup, error) {
	byHash := make(map[string][]string)
	err := fs.Walk(root, func(path string) error {
		hash, err := fs.Hash(path)
		if err != nil {
			logger.Warn("skipping unreadable file", "path", path, "error", err)
			return nil
		}
		byHash[hash] = append(byHash[hash], path)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking %s: %w", root, err)
	}

	var groups []DuplicateGroup
	for hash, paths := range byHash {
		if len(paths) < 2 {
			continue
		}
		slices.Sort(paths)
		groups = append(groups, DuplicateGroup{Hash: hash, Paths: paths})
	}
	slices.SortFunc(groups, func(a, b DuplicateGroup) int {
		return strings.Compare(a.Hash, b.Hash)
	})
	return groups, nil
}
