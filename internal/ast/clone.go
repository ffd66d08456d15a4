package ast

// ClonePattern returns a deep copy of a pattern. The resolver clones
// abstract patterns before substituting instantiation parameters so that
// every instantiation owns its expression strings independently.
func ClonePattern(p *Pattern) *Pattern {
	if p == nil {
		return nil
	}
	out := *p
	out.Params = cloneParams(p.Params)
	out.Lets = cloneLets(p.Lets)
	out.Rules = make([]*Rule, len(p.Rules))
	for i, r := range p.Rules {
		out.Rules[i] = CloneRule(r)
	}
	return &out
}

// CloneRule returns a deep copy of a rule.
func CloneRule(r *Rule) *Rule {
	if r == nil {
		return nil
	}
	out := *r
	out.Extends = append([]Extend(nil), r.Extends...)
	out.Lets = cloneLets(r.Lets)
	out.Checks = make([]Check, len(r.Checks))
	for i, c := range r.Checks {
		out.Checks[i] = CloneCheck(c)
	}
	return &out
}

// CloneCheck returns a deep copy of a check.
func CloneCheck(c Check) Check {
	c.Diagnostics = append([]string(nil), c.Diagnostics...)
	c.Message = CloneMessage(c.Message)
	return c
}

// CloneMessage returns a deep copy of a message template.
func CloneMessage(m Message) Message {
	return Message{Parts: append([]MessagePart(nil), m.Parts...)}
}

func cloneLets(lets []Let) []Let {
	return append([]Let(nil), lets...)
}

func cloneParams(params []Param) []Param {
	return append([]Param(nil), params...)
}
