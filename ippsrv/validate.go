package ippsrv

import "github.com/OpenPrinting/goipp"

// attrRuleFlags controls value-set and placement relaxations for a single
// attrRule entry.
type attrRuleFlags int

const (
	flagNone attrRuleFlags = 1 << iota
	// flag1SetOf permits more than one value (a 1setOf collection).
	flag1SetOf
	// flagOperationGroupOK additionally accepts the attribute in the
	// operation group, for the small set of create operations that allow
	// it (§4.1 "relaxation for create operations").
	flagOperationGroupOK
	// flagSettable marks an attribute that Set-xxx operations may target;
	// on a validation failure for this attribute under a Set-xxx
	// operation, the offending value is replaced with the out-of-band
	// not-settable value rather than simply rejected.
	flagSettable
)

// attrRule is one row of a per-operation static validation table (§4.1).
type attrRule struct {
	Name       string
	Expected   goipp.Tag
	Alternate  goipp.Tag // 0 if none
	Flags      attrRuleFlags
}

func (r attrRule) allowsOperationGroup() bool { return r.Flags&flagOperationGroupOK != 0 }
func (r attrRule) allows1SetOf() bool          { return r.Flags&flag1SetOf != 0 }
func (r attrRule) isSettable() bool            { return r.Flags&flagSettable != 0 }

// tagMatches applies the nameWithLang/textWithLang-match-name/text
// relaxation from §4.1.
func tagMatches(got, expected, alternate goipp.Tag) bool {
	if got == expected || (alternate != 0 && got == alternate) {
		return true
	}
	if expected == goipp.TagName && got == goipp.TagNameLang {
		return true
	}
	if expected == goipp.TagText && got == goipp.TagTextLang {
		return true
	}
	return false
}

// Validate checks the attributes of the given group against table,
// optionally filtered by a xxx-supported keyword list. It returns whether
// validation passed and, on failure, the attributes that must be echoed
// into the response's unsupported-attributes group. isSet indicates a
// Set-xxx operation, which substitutes not-settable rather than merely
// rejecting.
func Validate(group goipp.Attributes, operationGroup goipp.Attributes, supported []string, table []attrRule, isSet bool) (ok bool, unsupported goipp.Attributes) {
	ok = true
	rules := make(map[string]attrRule, len(table))
	for _, r := range table {
		rules[r.Name] = r
	}

	supportedSet := map[string]bool{}
	for _, s := range supported {
		supportedSet[s] = true
	}

	check := func(attr goipp.Attribute, inOperationGroup bool) {
		if len(supportedSet) > 0 && !supportedSet[attr.Name] {
			return
		}
		rule, known := rules[attr.Name]
		if !known {
			return
		}
		if inOperationGroup && !rule.allowsOperationGroup() {
			unsupported = append(unsupported, attr)
			ok = false
			return
		}
		if !rule.allows1SetOf() && len(attr.Values) > 1 {
			unsupported = append(unsupported, attr)
			ok = false
			return
		}
		for _, v := range attr.Values {
			if !tagMatches(v.T, rule.Expected, rule.Alternate) {
				unsupported = append(unsupported, attr)
				ok = false
				return
			}
		}
	}

	for _, attr := range group {
		check(attr, false)
	}
	for _, attr := range operationGroup {
		check(attr, true)
	}

	if !ok && isSet {
		var settable goipp.Attributes
		for _, attr := range unsupported {
			if rule, known := rules[attr.Name]; known && rule.isSettable() {
				var na goipp.Attribute
				na.Name = attr.Name
				na.Values.Add(goipp.TagNotSettable, goipp.Void{})
				settable = append(settable, na)
				continue
			}
			settable = append(settable, attr)
		}
		unsupported = settable
	}

	return ok, unsupported
}
