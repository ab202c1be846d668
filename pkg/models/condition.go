package models

// Group operators combine child condition results.
const (
	GroupOperatorAnd = "AND"
	GroupOperatorOr  = "OR"
	GroupOperatorNot = "NOT"
)

// Leaf operators compare a resolved field value against a literal.
const (
	OperatorEqual        = "=="
	OperatorNotEqual     = "!="
	OperatorGreater      = ">"
	OperatorLess         = "<"
	OperatorGreaterEqual = ">="
	OperatorLessEqual    = "<="
	OperatorLike         = "LIKE" // case-insensitive substring containment
	OperatorIn           = "IN"   // list membership
)

// Condition is a node of a recursive boolean expression. A node with a
// non-empty Field is a leaf comparison {Field, Operator, Value}; otherwise it
// is a group {Operator, Conditions}. A nil tree and an empty group are both
// vacuously true.
type Condition struct {
	Operator   string       `json:"operator"`
	Conditions []*Condition `json:"conditions,omitempty"`
	Field      string       `json:"field,omitempty"`
	Value      any          `json:"value,omitempty"`
}

// IsLeaf reports whether the node is a leaf comparison.
func (c *Condition) IsLeaf() bool {
	return c.Field != ""
}
