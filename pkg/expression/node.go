// Package expression parses MSBuild-style property, item and condition expressions
// into a tree whose nodes carry absolute source ranges and parent links.
//
// Parsing happens in two passes. The grammar pass builds the tree and records the
// byte span each node matched; PostParse then converts those spans to document
// ranges and wires every node to its parent.
package expression

import (
	"fmt"
	"strings"

	"github.com/walteh/msbuildls/pkg/position"
)

type Kind int

const (
	KindRoot Kind = iota
	KindSymbol
	KindQuotedString
	KindEvaluate
	KindItemGroup
	KindItemMetadata
	KindCompare
	KindLogical
	KindSimpleList
	KindSimpleListItem
)

func (k Kind) String() string {
	switch k {
	case KindRoot:
		return "Root"
	case KindSymbol:
		return "Symbol"
	case KindQuotedString:
		return "QuotedString"
	case KindEvaluate:
		return "Evaluate"
	case KindItemGroup:
		return "ItemGroup"
	case KindItemMetadata:
		return "ItemMetadata"
	case KindCompare:
		return "Compare"
	case KindLogical:
		return "Logical"
	case KindSimpleList:
		return "SimpleList"
	case KindSimpleListItem:
		return "SimpleListItem"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Span is the half-open byte span [Start, End) a node matched in the parsed text.
type Span struct {
	Start int
	End   int
}

func (s Span) Len() int {
	return s.End - s.Start
}

// Node is implemented only by the node types of this package:
// *Root, *Symbol, *QuotedString, *Evaluate, *ItemGroup, *ItemMetadata,
// *Compare, *Logical, *SimpleList and *SimpleListItem.
type Node interface {
	Kind() Kind
	Span() Span
	Range() position.Range
	// Parent is nil for the root.
	Parent() Node
	Children() []Node
	String() string

	base() *nodeBase
}

type nodeBase struct {
	span   Span
	rng    position.Range
	parent Node
}

func (b *nodeBase) Span() Span {
	return b.span
}

func (b *nodeBase) Range() position.Range {
	return b.rng
}

func (b *nodeBase) Parent() Node {
	return b.parent
}

func (b *nodeBase) base() *nodeBase {
	return b
}

// Root is the single top-level node of every parse. Expression is nil for empty input.
type Root struct {
	nodeBase
	Expression Node
}

func (n *Root) Kind() Kind { return KindRoot }

func (n *Root) Children() []Node {
	if n.Expression == nil {
		return nil
	}
	return []Node{n.Expression}
}

func (n *Root) String() string {
	if n.Expression == nil {
		return "Root()"
	}
	return "Root(" + n.Expression.String() + ")"
}

// Symbol is a bare identifier. A Symbol with an empty Name is a placeholder for a
// name the user has not typed yet.
type Symbol struct {
	nodeBase
	Name string
}

func (n *Symbol) Kind() Kind       { return KindSymbol }
func (n *Symbol) Children() []Node { return nil }
func (n *Symbol) String() string   { return n.Name }

// IsPlaceholder reports whether the symbol stands in for a missing name.
func (n *Symbol) IsPlaceholder() bool {
	return n.Name == ""
}

// QuotedString is a single-quoted string. References embedded in the content
// ("$(...)", "@(...)", "%(...)") are parsed into Evaluations.
type QuotedString struct {
	nodeBase
	Content     string
	Evaluations []Node
}

func (n *QuotedString) Kind() Kind       { return KindQuotedString }
func (n *QuotedString) Children() []Node { return n.Evaluations }
func (n *QuotedString) String() string   { return "'" + n.Content + "'" }

// Evaluate is a property reference, $(Name).
type Evaluate struct {
	nodeBase
	Body Node
}

func (n *Evaluate) Kind() Kind       { return KindEvaluate }
func (n *Evaluate) Children() []Node { return []Node{n.Body} }
func (n *Evaluate) String() string   { return "$(" + n.Body.String() + ")" }

// ItemGroup is an item-list reference, @(Name).
type ItemGroup struct {
	nodeBase
	Body Node
}

func (n *ItemGroup) Kind() Kind       { return KindItemGroup }
func (n *ItemGroup) Children() []Node { return []Node{n.Body} }
func (n *ItemGroup) String() string   { return "@(" + n.Body.String() + ")" }

// ItemMetadata is a metadata reference, %(Name) or %(ItemType.Name).
type ItemMetadata struct {
	nodeBase
	// ItemType is nil for unqualified references.
	ItemType *Symbol
	Metadata *Symbol
}

func (n *ItemMetadata) Kind() Kind { return KindItemMetadata }

func (n *ItemMetadata) Children() []Node {
	if n.ItemType == nil {
		return []Node{n.Metadata}
	}
	return []Node{n.ItemType, n.Metadata}
}

func (n *ItemMetadata) String() string {
	if n.ItemType == nil {
		return "%(" + n.Metadata.Name + ")"
	}
	return "%(" + n.ItemType.Name + "." + n.Metadata.Name + ")"
}

type CompareKind int

const (
	Equality CompareKind = iota
	Inequality
)

func (k CompareKind) String() string {
	if k == Inequality {
		return "!="
	}
	return "=="
}

// Compare is a binary comparison between two operands.
type Compare struct {
	nodeBase
	Op    CompareKind
	Left  Node
	Right Node
}

func (n *Compare) Kind() Kind       { return KindCompare }
func (n *Compare) Children() []Node { return []Node{n.Left, n.Right} }

func (n *Compare) String() string {
	return "(" + n.Left.String() + " " + n.Op.String() + " " + n.Right.String() + ")"
}

type LogicalOperator int

const (
	Not LogicalOperator = iota
	And
	Or
)

func (o LogicalOperator) String() string {
	switch o {
	case Not:
		return "!"
	case And:
		return "And"
	case Or:
		return "Or"
	default:
		return fmt.Sprintf("LogicalOperator(%d)", int(o))
	}
}

// Logical applies Not to a single operand, or And/Or to two or more operands.
type Logical struct {
	nodeBase
	Op       LogicalOperator
	Operands []Node
}

func (n *Logical) Kind() Kind       { return KindLogical }
func (n *Logical) Children() []Node { return n.Operands }

func (n *Logical) String() string {
	if n.Op == Not {
		return "!" + n.Operands[0].String()
	}
	parts := make([]string, len(n.Operands))
	for i, op := range n.Operands {
		parts[i] = op.String()
	}
	return "(" + strings.Join(parts, " "+n.Op.String()+" ") + ")"
}

// SimpleList is a semicolon-separated list, as used by item Include attributes.
type SimpleList struct {
	nodeBase
	Items []*SimpleListItem
}

func (n *SimpleList) Kind() Kind { return KindSimpleList }

func (n *SimpleList) Children() []Node {
	children := make([]Node, len(n.Items))
	for i, item := range n.Items {
		children[i] = item
	}
	return children
}

func (n *SimpleList) String() string {
	parts := make([]string, len(n.Items))
	for i, item := range n.Items {
		parts[i] = item.Value
	}
	return strings.Join(parts, ";")
}

// SimpleListItem is one entry of a SimpleList. Empty entries are kept.
type SimpleListItem struct {
	nodeBase
	Value string
}

func (n *SimpleListItem) Kind() Kind       { return KindSimpleListItem }
func (n *SimpleListItem) Children() []Node { return nil }
func (n *SimpleListItem) String() string   { return n.Value }

// Walk calls fn for node and each of its descendants in pre-order. Returning false
// from fn skips the node's children.
func Walk(node Node, fn func(Node) bool) {
	if node == nil || !fn(node) {
		return
	}
	for _, child := range node.Children() {
		Walk(child, fn)
	}
}

// Ancestors returns the parents of node, nearest first.
func Ancestors(node Node) []Node {
	var chain []Node
	for p := node.Parent(); p != nil; p = p.Parent() {
		chain = append(chain, p)
	}
	return chain
}
