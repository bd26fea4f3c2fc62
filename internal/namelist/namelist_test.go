package namelist

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParse(t *testing.T) {
	got := Parse("  Alice  \n\n Bob   Smith\r\n\t\nCarol")
	assert.Equal(t, []string{"Alice", "Bob Smith", "Carol"}, got)
	assert.Empty(t, Parse(" \n \n"))
}

func TestCompare(t *testing.T) {
	tests := []struct {
		name   string
		list1  []string
		list2  []string
		expect Result
	}{
		{
			name:  "repeated in one list and shared",
			list1: []string{"Alice", "Bob", "Alice"},
			list2: []string{"Bob", "Carol"},
			expect: Result{
				OnlyInList1:      []string{"Alice", "Alice"},
				OnlyInList2:      []string{"Carol"},
				DuplicatesInBoth: []Duplicate{{Name: "Alice", Count: 2}, {Name: "Bob", Count: 2}},
			},
		},
		{
			name:  "higher counts first",
			list1: []string{"Dan", "Eve"},
			list2: []string{"Eve", "Eve", "Dan"},
			expect: Result{
				OnlyInList1:      []string{},
				OnlyInList2:      []string{},
				DuplicatesInBoth: []Duplicate{{Name: "Eve", Count: 3}, {Name: "Dan", Count: 2}},
			},
		},
		{
			name:  "empty lists",
			expect: Result{
				OnlyInList1:      []string{},
				OnlyInList2:      []string{},
				DuplicatesInBoth: []Duplicate{},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expect, Compare(tt.list1, tt.list2))
		})
	}
}

func TestCompareText(t *testing.T) {
	res := CompareText("张三\n李四", "李四\n 王五 ")
	assert.Equal(t, []string{"张三"}, res.OnlyInList1)
	assert.Equal(t, []string{"王五"}, res.OnlyInList2)
	assert.Equal(t, []Duplicate{{Name: "李四", Count: 2}}, res.DuplicatesInBoth)
}
