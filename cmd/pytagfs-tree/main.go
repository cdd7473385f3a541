// Command pytagfs-tree renders a store's tag graph as an indented tree,
// without mounting anything — a read-only debugging aid for inspecting
// what a mount would project (SPEC_FULL.md §8).
package main

import (
	"flag"
	"fmt"
	"os"
	"sort"

	"pytagfs/internal/store"
	"pytagfs/internal/tagindex"

	"github.com/disiqueira/gotree/v3"
)

func main() {
	dataDir := flag.String("d", "", "datastore directory (required)")
	flag.StringVar(dataDir, "datastore", "", "datastore directory (required)")
	flag.Parse()

	if *dataDir == "" {
		fmt.Fprintln(os.Stderr, "usage: pytagfs-tree -datastore <dir>")
		os.Exit(1)
	}

	s, err := store.Open(*dataDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open datastore: %v\n", err)
		os.Exit(1)
	}
	defer s.Close()

	idx, err := tagindex.Rebuild(s)
	if err != nil {
		fmt.Fprintf(os.Stderr, "rebuild index: %v\n", err)
		os.Exit(1)
	}

	tree := gotree.New(*dataDir)

	tags := idx.AllTags()
	sort.Strings(tags)
	for _, tag := range tags {
		ids := idx.FilesWithTag(tag)
		label := fmt.Sprintf("%s (%d)", tag, len(ids))
		branch := tree.Add(label)
		names, err := namesFor(s, ids)
		if err != nil {
			fmt.Fprintf(os.Stderr, "read tag %q: %v\n", tag, err)
			os.Exit(1)
		}
		sort.Strings(names)
		for _, n := range names {
			branch.Add(n)
		}
	}

	empty := idx.AllEmptyTags()
	sort.Strings(empty)
	if len(empty) > 0 {
		branch := tree.Add("(empty tags)")
		for _, tag := range empty {
			branch.Add(tag)
		}
	}

	fmt.Print(tree.Print())
}

func namesFor(s *store.Store, ids map[store.FileId]struct{}) ([]string, error) {
	names := make([]string, 0, len(ids))
	err := s.View(func(tx *store.Tx) error {
		for id := range ids {
			rec, err := tx.GetFile(id)
			if err != nil {
				return err
			}
			names = append(names, rec.Name)
		}
		return nil
	})
	return names, err
}
