// Package namelist compares two newline-separated name lists.
package namelist

import (
	"sort"
	"strings"
)

// Duplicate is a name that appears more than once across both lists.
type Duplicate struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// Result 名单比对结果
type Result struct {
	OnlyInList1      []string    `json:"onlyInList1"`
	OnlyInList2      []string    `json:"onlyInList2"`
	DuplicatesInBoth []Duplicate `json:"duplicatesInBoth"`
}

// Parse splits text into names: one per line, trimmed, inner whitespace
// collapsed to a single space, empty lines dropped.
func Parse(text string) []string {
	lines := strings.Split(text, "\n")
	names := make([]string, 0, len(lines))
	for _, line := range lines {
		name := strings.Join(strings.Fields(line), " ")
		if name != "" {
			names = append(names, name)
		}
	}
	return names
}

// Compare keeps list order and repeats in the only-in results. Duplicates are
// counted over the concatenation of both lists and sorted by count descending,
// ties keeping first-appearance order.
func Compare(list1, list2 []string) Result {
	in1 := toSet(list1)
	in2 := toSet(list2)

	res := Result{
		OnlyInList1:      make([]string, 0),
		OnlyInList2:      make([]string, 0),
		DuplicatesInBoth: make([]Duplicate, 0),
	}
	for _, n := range list1 {
		if _, ok := in2[n]; !ok {
			res.OnlyInList1 = append(res.OnlyInList1, n)
		}
	}
	for _, n := range list2 {
		if _, ok := in1[n]; !ok {
			res.OnlyInList2 = append(res.OnlyInList2, n)
		}
	}

	counts := make(map[string]int, len(list1)+len(list2))
	order := make([]string, 0, len(list1)+len(list2))
	for _, list := range [][]string{list1, list2} {
		for _, n := range list {
			if counts[n] == 0 {
				order = append(order, n)
			}
			counts[n]++
		}
	}
	for _, n := range order {
		if counts[n] > 1 {
			res.DuplicatesInBoth = append(res.DuplicatesInBoth, Duplicate{Name: n, Count: counts[n]})
		}
	}
	sort.SliceStable(res.DuplicatesInBoth, func(i, j int) bool {
		return res.DuplicatesInBoth[i].Count > res.DuplicatesInBoth[j].Count
	})
	return res
}

// CompareText parses both texts and compares them.
func CompareText(text1, text2 string) Result {
	return Compare(Parse(text1), Parse(text2))
}

func toSet(names []string) map[string]struct{} {
	set := make(map[string]struct{}, len(names))
	for _, n := range names {
		set[n] = struct{}{}
	}
	return set
}
