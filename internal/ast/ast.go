// Package ast is the statement AST the engine's executor consumes. Spec §1
// treats the SQL parser as an external collaborator "assumed to produce a
// statement AST" — this package is that AST's concrete shape. A real
// producer lives in internal/sqlfront (lowering github.com/pingcap/tidb's
// parser output into these types); tests may also construct this AST by
// hand, bypassing any parser entirely.
package ast

import "sqlkv/internal/value"

// Statement is any top-level SQL statement.
type Statement interface{ stmt() }

// BinOp enumerates every binary operator an unresolved expression may use.
type BinOp int

const (
	OpAnd BinOp = iota
	OpOr
	OpEq
	OpNotEq
	OpLt
	OpGt
	OpLtEq
	OpGtEq
	OpAdd
	OpSub
	OpMul
	OpDiv
	OpMod
)

// Expr is an unresolved expression node, as produced by the parser: value
// literals, bare/qualified identifiers, and binary operators. Resolution
// against a particular row-view's column set happens in internal/catalog
// and internal/executor, turning this tree into internal/expr's resolved
// tree.
type Expr interface{ isExpr() }

// Literal is a constant value.
type Literal struct{ Value value.Value }

func (Literal) isExpr() {}

// ColumnRef is a possibly-qualified column reference. A qualified name
// requires an exact table/alias match; an unqualified name must match
// exactly one visible column.
type ColumnRef struct {
	Table  string // empty if unqualified
	Column string
}

func (ColumnRef) isExpr() {}

// BinaryOp is any binary operator application.
type BinaryOp struct {
	Op          BinOp
	Left, Right Expr
}

func (BinaryOp) isExpr() {}

// Not is logical negation (NOT expr), used in WHERE/CHECK predicates.
type Not struct{ Operand Expr }

func (Not) isExpr() {}

// ReferentialAction enumerates FOREIGN KEY ON DELETE/ON UPDATE behavior.
type ReferentialAction int

const (
	NoAction ReferentialAction = iota
	Cascade
	SetNull
	SetDefault
)

// ColumnDef is one column in a CREATE TABLE statement, including the
// column-level constraint shortcuts (PRIMARY KEY, UNIQUE, NOT NULL, CHECK,
// DEFAULT, REFERENCES) that internal/catalog synthesizes into full
// constraints at table-creation time.
type ColumnDef struct {
	Name       string
	Type       value.Type
	NotNull    bool
	Unique     bool
	PrimaryKey bool
	Check      Expr // nil if absent
	Default    Expr // nil if absent (defaults to Null)

	References       *ColumnReference // nil if absent
}

// ColumnReference is a column-level REFERENCES shortcut.
type ColumnReference struct {
	Table    string
	Column   string
	OnDelete ReferentialAction
	OnUpdate ReferentialAction
}

// TableConstraintKind enumerates table-level constraint clauses.
type TableConstraintKind int

const (
	TCPrimaryKey TableConstraintKind = iota
	TCUnique
	TCCheck
	TCForeignKey
)

// TableConstraint is a table-level constraint clause (as opposed to a
// column-level shortcut embedded in a ColumnDef).
type TableConstraint struct {
	Kind    TableConstraintKind
	Name    string
	Columns []string // PK/UNIQUE/FK: the local columns
	Check   Expr     // CHECK only

	ReferencedTable   string // FK only
	ReferencedColumns []string
	OnDelete          ReferentialAction
	OnUpdate          ReferentialAction
}

// CreateTable is CREATE TABLE.
type CreateTable struct {
	Name             string
	IfNotExists      bool
	Columns          []ColumnDef
	TableConstraints []TableConstraint
}

func (CreateTable) stmt() {}

// DropTable is DROP TABLE.
type DropTable struct {
	Name     string
	IfExists bool
}

func (DropTable) stmt() {}

// Insert is INSERT INTO. Exactly one of Rows or Select is populated.
type Insert struct {
	Table   string
	Columns []string // empty means "all columns, in schema order"
	Rows    [][]Expr
	Select  *Select
}

func (Insert) stmt() {}

// JoinKind enumerates the supported join operators.
type JoinKind int

const (
	InnerJoin JoinKind = iota
	LeftJoin
	RightJoin
)

// FromItem is one node of a FROM clause: either a bare table reference or a
// join of two FromItems.
type FromItem interface{ isFrom() }

// TableRef is a FROM-clause leaf: a table name with an optional alias.
type TableRef struct {
	Table string
	Alias string // empty if none
}

func (TableRef) isFrom() {}

// Join is a FROM-clause join node. Exactly one of Natural, Using, or On
// should be set; all empty means a cross join (only legal for InnerJoin).
type Join struct {
	Left, Right FromItem
	Kind        JoinKind
	Natural     bool
	Using       []string
	On          Expr
}

func (Join) isFrom() {}

// Projection is one item of a SELECT's projection list.
type Projection struct {
	// Wildcard selects every visible column (SELECT *); if WildcardTable
	// is non-empty it narrows that to one table's columns (tbl.*).
	Wildcard      bool
	WildcardTable string

	Expr  Expr // nil if Wildcard
	Alias string
}

// OrderTerm is one ORDER BY clause item.
type OrderTerm struct {
	Column     string
	Desc       bool
	NullsFirst bool
}

// Select is SELECT.
type Select struct {
	From        FromItem // nil means no FROM clause at all
	Where       Expr     // nil means no WHERE (always true)
	Projections []Projection
	OrderBy     []OrderTerm
}

func (Select) stmt() {}

// Delete is DELETE FROM.
type Delete struct {
	Table string
	Where Expr
}

func (Delete) stmt() {}

// Assignment is one SET clause item in an UPDATE.
type Assignment struct {
	Column string
	Value  Expr
}

// Update is UPDATE.
type Update struct {
	Table       string
	Assignments []Assignment
	Where       Expr
}

func (Update) stmt() {}
