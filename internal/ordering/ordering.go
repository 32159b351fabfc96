// Package ordering arranges sibling nodes according to their after-references.
package ordering

import "github.com/starford/bok/internal/models"

// SortByAfter returns siblings ordered so that every node naming a present
// sibling in After comes later than that sibling.
//
// Each pass walks the remaining nodes in input order and places every node
// whose predecessor is absent or already placed. When a pass places nothing
// (cycle, or an after-reference to a non-sibling) the remainder is appended in
// input order. The input slice is not modified.
func SortByAfter(siblings []models.Node) []models.Node {
	sorted := make([]models.Node, 0, len(siblings))
	remaining := append([]models.Node(nil), siblings...)
	placed := make(map[string]struct{}, len(siblings))

	for len(remaining) > 0 {
		next := remaining[:0:0]
		for _, n := range remaining {
			if _, ok := placed[n.After()]; n.After() == "" || ok {
				sorted = append(sorted, n)
				placed[n.ID] = struct{}{}
				continue
			}
			next = append(next, n)
		}
		if len(next) == len(remaining) {
			sorted = append(sorted, next...)
			break
		}
		remaining = next
	}
	return sorted
}
