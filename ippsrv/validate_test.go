package ippsrv

import (
	"testing"

	"github.com/OpenPrinting/goipp"
	"github.com/stretchr/testify/assert"
)

func attr(name string, tag goipp.Tag, values ...goipp.Value) goipp.Attribute {
	var a goipp.Attribute
	a.Name = name
	for _, v := range values {
		a.Values.Add(tag, v)
	}
	return a
}

var copiesRule = []attrRule{
	{Name: "copies", Expected: goipp.TagInteger},
	{Name: "job-name", Expected: goipp.TagName},
	{Name: "media-col", Expected: goipp.TagBeginCollection, Flags: flag1SetOf},
}

func TestValidate_acceptsMatchingTag(t *testing.T) {
	group := goipp.Attributes{attr("copies", goipp.TagInteger, goipp.Integer(3))}
	ok, unsupported := Validate(group, nil, nil, copiesRule, false)
	assert.True(t, ok)
	assert.Empty(t, unsupported)
}

func TestValidate_rejectsWrongTag(t *testing.T) {
	group := goipp.Attributes{attr("copies", goipp.TagKeyword, goipp.String("lots"))}
	ok, unsupported := Validate(group, nil, nil, copiesRule, false)
	assert.False(t, ok)
	assert.Len(t, unsupported, 1)
	assert.Equal(t, "copies", unsupported[0].Name)
}

func TestValidate_rejectsCardinalityWithout1SetOf(t *testing.T) {
	group := goipp.Attributes{attr("copies", goipp.TagInteger, goipp.Integer(1), goipp.Integer(2))}
	ok, unsupported := Validate(group, nil, nil, copiesRule, false)
	assert.False(t, ok)
	assert.Equal(t, "copies", unsupported[0].Name)
}

func TestValidate_allows1SetOfMultiValue(t *testing.T) {
	group := goipp.Attributes{attr("media-col", goipp.TagBeginCollection, goipp.Void{}, goipp.Void{})}
	ok, _ := Validate(group, nil, nil, copiesRule, false)
	assert.True(t, ok)
}

func TestValidate_nameWithLangMatchesName(t *testing.T) {
	group := goipp.Attributes{attr("job-name", goipp.TagNameLang, goipp.String("doc"))}
	ok, _ := Validate(group, nil, nil, copiesRule, false)
	assert.True(t, ok, "nameWithLang must be accepted where name is expected")
}

func TestValidate_ignoresUnknownAttribute(t *testing.T) {
	group := goipp.Attributes{attr("totally-unknown-attribute", goipp.TagKeyword, goipp.String("x"))}
	ok, unsupported := Validate(group, nil, nil, copiesRule, false)
	assert.True(t, ok)
	assert.Empty(t, unsupported)
}

func TestValidate_filtersBySupportedList(t *testing.T) {
	group := goipp.Attributes{attr("copies", goipp.TagKeyword, goipp.String("bad"))}
	ok, unsupported := Validate(group, nil, []string{"job-name"}, copiesRule, false)
	assert.True(t, ok, "an attribute absent from the supported list is not checked")
	assert.Empty(t, unsupported)
}

func TestValidate_operationGroupRejectedUnlessFlagged(t *testing.T) {
	group := goipp.Attributes{attr("copies", goipp.TagInteger, goipp.Integer(3))}
	ok, unsupported := Validate(nil, group, nil, copiesRule, false)
	assert.False(t, ok)
	assert.Equal(t, "copies", unsupported[0].Name)
}

func TestValidate_operationGroupAllowedWhenFlagged(t *testing.T) {
	rules := []attrRule{{Name: "copies", Expected: goipp.TagInteger, Flags: flagOperationGroupOK}}
	group := goipp.Attributes{attr("copies", goipp.TagInteger, goipp.Integer(3))}
	ok, _ := Validate(nil, group, nil, rules, false)
	assert.True(t, ok)
}

func TestValidate_setSubstitutesNotSettableForSettableAttrs(t *testing.T) {
	rules := []attrRule{{Name: "printer-name", Expected: goipp.TagInteger, Flags: flagSettable}}
	group := goipp.Attributes{attr("printer-name", goipp.TagKeyword, goipp.String("x"))}
	ok, unsupported := Validate(group, nil, nil, rules, true)
	assert.False(t, ok)
	assert.Len(t, unsupported, 1)
	assert.Equal(t, goipp.TagNotSettable, unsupported[0].Values[0].T)
}

func TestValidate_isIdempotent(t *testing.T) {
	group := goipp.Attributes{attr("copies", goipp.TagKeyword, goipp.String("bad"))}
	ok1, unsupported1 := Validate(group, nil, nil, copiesRule, false)
	ok2, unsupported2 := Validate(group, nil, nil, copiesRule, false)
	assert.Equal(t, ok1, ok2, "§8 invariant 5: validation must be idempotent")
	assert.Equal(t, unsupported1, unsupported2)
}
