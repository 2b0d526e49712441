package pivot

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDiff(t *testing.T) {
	tests := []struct {
		name          string
		current       []string
		desired       []string
		wantAdd       []string
		wantDelete    []string
		wantUnchanged []string
	}{
		{"equal sets", []string{"1", "2"}, []string{"2", "1"}, nil, nil, []string{"2", "1"}},
		{"add and remove", []string{"1", "2"}, []string{"3", "1"}, []string{"3"}, []string{"2"}, []string{"1"}},
		{"clear", []string{"1", "2"}, []string{}, nil, []string{"1", "2"}, nil},
		{"from empty", nil, []string{"4", "4", "5"}, []string{"4", "5"}, nil, nil},
		{"duplicate current rows", []string{"1", "1"}, nil, nil, []string{"1"}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			add, del, same := Diff(tt.current, tt.desired)
			assert.Equal(t, tt.wantAdd, add)
			assert.Equal(t, tt.wantDelete, del)
			assert.Equal(t, tt.wantUnchanged, same)
		})
	}
}

func TestDedupe(t *testing.T) {
	assert.Equal(t, []string{"b", "a"}, Dedupe([]string{"b", "a", "b"}))
	assert.Equal(t, []string{}, Dedupe(nil))
}

func TestClassify(t *testing.T) {
	spec := tagsSpec()

	pure := Classify(spec, []string{"article_id", "tag_id"})
	assert.Equal(t, Pure, pure.Type)
	assert.Empty(t, pure.AttributeColumns)

	attr := Classify(spec, []string{"id", "article_id", "tag_id", "created_at"})
	assert.Equal(t, Attribute, attr.Type)
	assert.Equal(t, []string{"id", "created_at"}, attr.AttributeColumns)

	unknown := Classify(spec, []string{"article_id", "label_id"})
	assert.Equal(t, Unknown, unknown.Type)

	assert.Equal(t, "pure", Pure.String())
	assert.Equal(t, "attribute", Attribute.String())
	assert.Equal(t, "unknown", Unknown.String())
}
