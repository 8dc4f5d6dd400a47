// Package sqlfront is sqlkv's SQL front end: it wraps
// github.com/pingcap/tidb/pkg/parser for MySQL-dialect parsing and lowers
// its AST into sqlkv's own internal/ast statement tree.
//
// This package is intentionally a thin, mechanical translator. The
// interesting logic — constraint checking, coercion, join semantics —
// lives in internal/catalog, internal/table, internal/join, and
// internal/executor; this package's only job is turning SQL text into the
// unresolved ast.Expr/ast.Statement shapes those packages consume.
package sqlfront

import (
	"fmt"

	tidbparser "github.com/pingcap/tidb/pkg/parser"
	tidbast "github.com/pingcap/tidb/pkg/parser/ast"
	"github.com/pingcap/tidb/pkg/parser/mysql"
	"github.com/pingcap/tidb/pkg/parser/opcode"
	tidbtest "github.com/pingcap/tidb/pkg/parser/test_driver"
	"github.com/pingcap/tidb/pkg/parser/types"

	"sqlkv/internal/ast"
	"sqlkv/internal/value"
)

// Parse splits and parses a string containing one or more
// semicolon-delimited SQL statements, returning sqlkv's own statement AST
// for each. Parse errors from TiDB are passed through wrapped but
// unmodified in content.
func Parse(sql string) ([]ast.Statement, error) {
	p := tidbparser.New()
	nodes, _, err := p.Parse(sql, "", "")
	if err != nil {
		return nil, fmt.Errorf("sqlfront: parse: %w", err)
	}
	stmts := make([]ast.Statement, 0, len(nodes))
	for _, n := range nodes {
		s, err := lowerStmt(n)
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, s)
	}
	return stmts, nil
}

func lowerStmt(n tidbast.StmtNode) (ast.Statement, error) {
	switch s := n.(type) {
	case *tidbast.CreateTableStmt:
		return lowerCreateTable(s)
	case *tidbast.DropTableStmt:
		return lowerDropTable(s)
	case *tidbast.InsertStmt:
		return lowerInsert(s)
	case *tidbast.SelectStmt:
		return lowerSelect(s)
	case *tidbast.DeleteStmt:
		return lowerDelete(s)
	case *tidbast.UpdateStmt:
		return lowerUpdate(s)
	default:
		return nil, fmt.Errorf("sqlfront: unsupported statement type %T", n)
	}
}

// --- CREATE TABLE ---

func lowerCreateTable(s *tidbast.CreateTableStmt) (ast.Statement, error) {
	ct := ast.CreateTable{
		Name:        s.Table.Name.O,
		IfNotExists: s.IfNotExists,
	}

	for _, c := range s.Cols {
		cd, err := lowerColumnDef(c)
		if err != nil {
			return nil, err
		}
		ct.Columns = append(ct.Columns, cd)
	}

	for _, con := range s.Constraints {
		tc, err := lowerTableConstraint(con)
		if err != nil {
			return nil, err
		}
		if tc != nil {
			ct.TableConstraints = append(ct.TableConstraints, *tc)
		}
	}

	return ct, nil
}

func lowerColumnDef(c *tidbast.ColumnDef) (ast.ColumnDef, error) {
	typ, err := classifyType(c.Tp)
	if err != nil {
		return ast.ColumnDef{}, fmt.Errorf("column %q: %w", c.Name.Name.O, err)
	}
	cd := ast.ColumnDef{Name: c.Name.Name.O, Type: typ}

	for _, opt := range c.Options {
		switch opt.Tp {
		case tidbast.ColumnOptionNotNull:
			cd.NotNull = true
		case tidbast.ColumnOptionPrimaryKey:
			cd.PrimaryKey = true
			cd.NotNull = true
		case tidbast.ColumnOptionUniqKey:
			cd.Unique = true
		case tidbast.ColumnOptionDefaultValue:
			e, err := lowerExpr(opt.Expr)
			if err != nil {
				return ast.ColumnDef{}, fmt.Errorf("column %q default: %w", c.Name.Name.O, err)
			}
			cd.Default = e
		case tidbast.ColumnOptionCheck:
			e, err := lowerExpr(opt.Expr)
			if err != nil {
				return ast.ColumnDef{}, fmt.Errorf("column %q check: %w", c.Name.Name.O, err)
			}
			cd.Check = e
		case tidbast.ColumnOptionReference:
			ref, err := lowerColumnReference(opt.Refer)
			if err != nil {
				return ast.ColumnDef{}, err
			}
			cd.References = ref
		}
	}
	return cd, nil
}

func lowerColumnReference(r *tidbast.ReferenceDef) (*ast.ColumnReference, error) {
	if r == nil || len(r.IndexPartSpecifications) == 0 {
		return nil, fmt.Errorf("sqlfront: REFERENCES without a column")
	}
	onDelete, onUpdate := referentialActions(r)
	return &ast.ColumnReference{
		Table:    r.Table.Name.O,
		Column:   r.IndexPartSpecifications[0].Column.Name.O,
		OnDelete: onDelete,
		OnUpdate: onUpdate,
	}, nil
}

func referentialActions(r *tidbast.ReferenceDef) (onDelete, onUpdate ast.ReferentialAction) {
	if r.OnDelete != nil {
		onDelete = referentialAction(r.OnDelete.ReferOpt)
	}
	if r.OnUpdate != nil {
		onUpdate = referentialAction(r.OnUpdate.ReferOpt)
	}
	return
}

func referentialAction(opt tidbast.ReferOptionType) ast.ReferentialAction {
	switch opt {
	case tidbast.ReferOptionCascade:
		return ast.Cascade
	case tidbast.ReferOptionSetNull:
		return ast.SetNull
	case tidbast.ReferOptionSetDefault:
		return ast.SetDefault
	default:
		return ast.NoAction
	}
}

func lowerTableConstraint(con *tidbast.Constraint) (*ast.TableConstraint, error) {
	switch con.Tp {
	case tidbast.ConstraintPrimaryKey:
		return &ast.TableConstraint{Kind: ast.TCPrimaryKey, Name: con.Name, Columns: keyColumns(con.Keys)}, nil
	case tidbast.ConstraintUniq, tidbast.ConstraintUniqKey, tidbast.ConstraintUniqIndex:
		return &ast.TableConstraint{Kind: ast.TCUnique, Name: con.Name, Columns: keyColumns(con.Keys)}, nil
	case tidbast.ConstraintCheck:
		e, err := lowerExpr(con.Expr)
		if err != nil {
			return nil, fmt.Errorf("check %q: %w", con.Name, err)
		}
		return &ast.TableConstraint{Kind: ast.TCCheck, Name: con.Name, Check: e}, nil
	case tidbast.ConstraintForeignKey:
		onDelete, onUpdate := referentialActions(con.Refer)
		return &ast.TableConstraint{
			Kind:              ast.TCForeignKey,
			Name:              con.Name,
			Columns:           keyColumns(con.Keys),
			ReferencedTable:   con.Refer.Table.Name.O,
			ReferencedColumns: indexPartColumns(con.Refer.IndexPartSpecifications),
			OnDelete:          onDelete,
			OnUpdate:          onUpdate,
		}, nil
	default:
		// Indexes and other TiDB-only constructs outside this engine's
		// constraint set are silently dropped rather than rejected.
		return nil, nil
	}
}

func keyColumns(keys []*tidbast.IndexPartSpecification) []string {
	return indexPartColumns(keys)
}

func indexPartColumns(parts []*tidbast.IndexPartSpecification) []string {
	cols := make([]string, len(parts))
	for i, p := range parts {
		cols[i] = p.Column.Name.O
	}
	return cols
}

// classifyType collapses TiDB's rich MySQL type system down to sqlkv's two
// scalar types, rejecting anything else (DATE, FLOAT, ...) with a named
// error rather than silently coercing it, mirroring the importer's refusal
// to guess at an unsupported column type. TiDB reports TEXT and BLOB
// columns with the same blob type codes, so BLOB columns are accepted as
// String here, unlike in the importer.
func classifyType(tp *types.FieldType) (value.Type, error) {
	switch tp.GetType() {
	case mysql.TypeTiny, mysql.TypeShort, mysql.TypeInt24, mysql.TypeLong, mysql.TypeLonglong, mysql.TypeYear:
		return value.TypeInteger, nil
	case mysql.TypeVarchar, mysql.TypeVarString, mysql.TypeString, mysql.TypeBlob,
		mysql.TypeTinyBlob, mysql.TypeMediumBlob, mysql.TypeLongBlob:
		return value.TypeString, nil
	default:
		return 0, fmt.Errorf("unsupported column type %q", types.TypeToStr(tp.GetType(), tp.GetCharset()))
	}
}

// --- DROP TABLE ---

func lowerDropTable(s *tidbast.DropTableStmt) (ast.Statement, error) {
	if len(s.Tables) != 1 {
		return nil, fmt.Errorf("sqlfront: DROP TABLE with more than one table is not supported")
	}
	return ast.DropTable{Name: s.Tables[0].Name.O, IfExists: s.IfExists}, nil
}

// --- INSERT ---

func lowerInsert(s *tidbast.InsertStmt) (ast.Statement, error) {
	tableName, err := singleTableName(s.Table)
	if err != nil {
		return nil, err
	}
	ins := ast.Insert{Table: tableName}
	for _, c := range s.Columns {
		ins.Columns = append(ins.Columns, c.Name.O)
	}

	if sel, ok := s.Select.(*tidbast.SelectStmt); ok {
		lowered, err := lowerSelect(sel)
		if err != nil {
			return nil, err
		}
		selStmt := lowered.(ast.Select)
		ins.Select = &selStmt
		return ins, nil
	}

	for _, row := range s.Lists {
		exprs := make([]ast.Expr, len(row))
		for i, e := range row {
			le, err := lowerExpr(e)
			if err != nil {
				return nil, err
			}
			exprs[i] = le
		}
		ins.Rows = append(ins.Rows, exprs)
	}
	return ins, nil
}

func singleTableName(refs *tidbast.TableRefsClause) (string, error) {
	if refs == nil || refs.TableRefs == nil {
		return "", fmt.Errorf("sqlfront: missing table reference")
	}
	src, ok := refs.TableRefs.Left.(*tidbast.TableSource)
	if !ok {
		return "", fmt.Errorf("sqlfront: unsupported INSERT/UPDATE/DELETE target")
	}
	name, ok := src.Source.(*tidbast.TableName)
	if !ok {
		return "", fmt.Errorf("sqlfront: unsupported INSERT/UPDATE/DELETE target")
	}
	return name.Name.O, nil
}

// --- SELECT ---

func lowerSelect(s *tidbast.SelectStmt) (ast.Statement, error) {
	sel := ast.Select{}

	if s.GroupBy != nil {
		return nil, fmt.Errorf("sqlfront: GROUP BY is not supported")
	}

	if s.From != nil && s.From.TableRefs != nil {
		from, err := lowerFrom(s.From.TableRefs)
		if err != nil {
			return nil, err
		}
		sel.From = from
	}

	if s.Where != nil {
		w, err := lowerExpr(s.Where)
		if err != nil {
			return nil, err
		}
		sel.Where = w
	}

	if s.Fields != nil {
		for _, f := range s.Fields.Fields {
			p, err := lowerField(f)
			if err != nil {
				return nil, err
			}
			sel.Projections = append(sel.Projections, p)
		}
	}

	if s.OrderBy != nil {
		for _, item := range s.OrderBy.Items {
			colRef, ok := item.Expr.(*tidbast.ColumnNameExpr)
			if !ok {
				return nil, fmt.Errorf("sqlfront: ORDER BY only supports plain column references")
			}
			sel.OrderBy = append(sel.OrderBy, ast.OrderTerm{
				Column:     colRef.Name.Name.O,
				Desc:       item.Desc,
				NullsFirst: item.NullOrder,
			})
		}
	}

	return sel, nil
}

func lowerField(f *tidbast.SelectField) (ast.Projection, error) {
	if f.WildCard != nil {
		return ast.Projection{Wildcard: true, WildcardTable: f.WildCard.Table.O}, nil
	}
	e, err := lowerExpr(f.Expr)
	if err != nil {
		return ast.Projection{}, err
	}
	alias := ""
	if f.AsName.O != "" {
		alias = f.AsName.O
	}
	return ast.Projection{Expr: e, Alias: alias}, nil
}

func lowerFrom(node tidbast.ResultSetNode) (ast.FromItem, error) {
	switch n := node.(type) {
	case *tidbast.TableSource:
		name, ok := n.Source.(*tidbast.TableName)
		if !ok {
			return nil, fmt.Errorf("sqlfront: only plain table references are supported in FROM")
		}
		return ast.TableRef{Table: name.Name.O, Alias: n.AsName.O}, nil
	case *tidbast.TableName:
		return ast.TableRef{Table: n.Name.O}, nil
	case *tidbast.Join:
		if n.Right == nil {
			// TiDB wraps even a single bare table in a Join node.
			return lowerFrom(n.Left)
		}
		left, err := lowerFrom(n.Left)
		if err != nil {
			return nil, err
		}
		right, err := lowerFrom(n.Right)
		if err != nil {
			return nil, err
		}
		j := ast.Join{Left: left, Right: right, Kind: joinKind(n.Tp), Natural: n.NaturalJoin}
		if len(n.Using) > 0 {
			for _, c := range n.Using {
				j.Using = append(j.Using, c.Name.O)
			}
		} else if n.On != nil {
			on, err := lowerExpr(n.On.Expr)
			if err != nil {
				return nil, err
			}
			j.On = on
		}
		return j, nil
	default:
		return nil, fmt.Errorf("sqlfront: unsupported FROM clause element %T", node)
	}
}

func joinKind(tp tidbast.JoinType) ast.JoinKind {
	switch tp {
	case tidbast.LeftJoin:
		return ast.LeftJoin
	case tidbast.RightJoin:
		return ast.RightJoin
	default:
		return ast.InnerJoin
	}
}

// --- DELETE ---

func lowerDelete(s *tidbast.DeleteStmt) (ast.Statement, error) {
	tableName, err := singleTableName(s.TableRefs)
	if err != nil {
		return nil, err
	}
	del := ast.Delete{Table: tableName}
	if s.Where != nil {
		w, err := lowerExpr(s.Where)
		if err != nil {
			return nil, err
		}
		del.Where = w
	}
	return del, nil
}

// --- UPDATE ---

func lowerUpdate(s *tidbast.UpdateStmt) (ast.Statement, error) {
	tableName, err := singleTableName(s.TableRefs)
	if err != nil {
		return nil, err
	}
	upd := ast.Update{Table: tableName}
	for _, a := range s.List {
		e, err := lowerExpr(a.Expr)
		if err != nil {
			return nil, err
		}
		upd.Assignments = append(upd.Assignments, ast.Assignment{Column: a.Column.Name.O, Value: e})
	}
	if s.Where != nil {
		w, err := lowerExpr(s.Where)
		if err != nil {
			return nil, err
		}
		upd.Where = w
	}
	return upd, nil
}

// --- Expressions ---

func lowerExpr(n tidbast.ExprNode) (ast.Expr, error) {
	switch e := n.(type) {
	case *tidbtest.ValueExpr:
		return lowerValue(e)
	case *tidbast.ColumnNameExpr:
		return ast.ColumnRef{Table: e.Name.Table.O, Column: e.Name.Name.O}, nil
	case *tidbast.ParenthesesExpr:
		return lowerExpr(e.Expr)
	case *tidbast.IsNullExpr:
		inner, err := lowerExpr(e.Expr)
		if err != nil {
			return nil, err
		}
		isNull := ast.BinaryOp{Op: ast.OpEq, Left: inner, Right: ast.Literal{Value: value.Null}}
		if e.Not {
			return ast.Not{Operand: isNull}, nil
		}
		return isNull, nil
	case *tidbast.UnaryOperationExpr:
		return lowerUnary(e)
	case *tidbast.BinaryOperationExpr:
		left, err := lowerExpr(e.L)
		if err != nil {
			return nil, err
		}
		right, err := lowerExpr(e.R)
		if err != nil {
			return nil, err
		}
		op, err := lowerOp(e.Op)
		if err != nil {
			return nil, err
		}
		return ast.BinaryOp{Op: op, Left: left, Right: right}, nil
	default:
		return nil, fmt.Errorf("sqlfront: unsupported expression %T", n)
	}
}

func lowerUnary(e *tidbast.UnaryOperationExpr) (ast.Expr, error) {
	operand, err := lowerExpr(e.V)
	if err != nil {
		return nil, err
	}
	switch e.Op {
	case opcode.Not, opcode.Not2:
		return ast.Not{Operand: operand}, nil
	case opcode.Minus:
		return ast.BinaryOp{Op: ast.OpSub, Left: ast.Literal{Value: value.Integer(0)}, Right: operand}, nil
	case opcode.Plus:
		return operand, nil
	default:
		return nil, fmt.Errorf("sqlfront: unsupported unary operator %v", e.Op)
	}
}

func lowerValue(e *tidbtest.ValueExpr) (ast.Expr, error) {
	if e.IsNull() {
		return ast.Literal{Value: value.Null}, nil
	}
	switch e.Kind() {
	case types.KindInt64:
		return ast.Literal{Value: value.Integer(e.GetInt64())}, nil
	case types.KindUint64:
		return ast.Literal{Value: value.Integer(int64(e.GetUint64()))}, nil
	case types.KindString, types.KindBytes:
		return ast.Literal{Value: value.String(e.GetString())}, nil
	default:
		return nil, fmt.Errorf("sqlfront: unsupported literal value of kind %d (sqlkv supports only INTEGER and STRING)", e.Kind())
	}
}

func lowerOp(op opcode.Op) (ast.BinOp, error) {
	switch op {
	case opcode.LogicAnd:
		return ast.OpAnd, nil
	case opcode.LogicOr:
		return ast.OpOr, nil
	case opcode.EQ:
		return ast.OpEq, nil
	case opcode.NE:
		return ast.OpNotEq, nil
	case opcode.LT:
		return ast.OpLt, nil
	case opcode.GT:
		return ast.OpGt, nil
	case opcode.LE:
		return ast.OpLtEq, nil
	case opcode.GE:
		return ast.OpGtEq, nil
	case opcode.Plus:
		return ast.OpAdd, nil
	case opcode.Minus:
		return ast.OpSub, nil
	case opcode.Mul:
		return ast.OpMul, nil
	case opcode.Div, opcode.IntDiv:
		return ast.OpDiv, nil
	case opcode.Mod:
		return ast.OpMod, nil
	default:
		return 0, fmt.Errorf("sqlfront: unsupported operator %v", op)
	}
}
