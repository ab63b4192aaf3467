package framescript

type expr interface {
	exprNode()
}

type (
	nameExpr struct {
		name string
	}
	// atExpr is an @name reference inside a query string.
	atExpr struct {
		name string
	}
	constExpr struct {
		value Value
	}
	fstringExpr struct {
		parts []fstringPart
	}
	listExpr struct {
		elts []expr
	}
	tupleExpr struct {
		elts []expr
	}
	dictExpr struct {
		keys   []expr
		values []expr
	}
	binaryExpr struct {
		op          string
		left, right expr
	}
	unaryExpr struct {
		op string
		x  expr
	}
	boolExpr struct {
		op          string
		left, right expr
	}
	compareExpr struct {
		left   expr
		ops    []string
		rights []expr
	}
	callExpr struct {
		fn     expr
		args   []expr
		kwargs []keyword
	}
	attrExpr struct {
		x    expr
		name string
	}
	indexExpr struct {
		x     expr
		index expr
	}
	sliceExpr struct {
		lo, hi, step expr
	}
	condExpr struct {
		cond, then, orElse expr
	}
)

type fstringPart struct {
	literal string
	expr    expr
	conv    byte
	spec    string
}

type keyword struct {
	name  string
	value expr
}

func (*nameExpr) exprNode()    {}
func (*atExpr) exprNode()      {}
func (*constExpr) exprNode()   {}
func (*fstringExpr) exprNode() {}
func (*listExpr) exprNode()    {}
func (*tupleExpr) exprNode()   {}
func (*dictExpr) exprNode()    {}
func (*binaryExpr) exprNode()  {}
func (*unaryExpr) exprNode()   {}
func (*boolExpr) exprNode()    {}
func (*compareExpr) exprNode() {}
func (*callExpr) exprNode()    {}
func (*attrExpr) exprNode()    {}
func (*indexExpr) exprNode()   {}
func (*sliceExpr) exprNode()   {}
func (*condExpr) exprNode()    {}

type stmt interface {
	stmtLine() int
}

type (
	assignStmt struct {
		line    int
		targets []expr
		value   expr
	}
	augAssignStmt struct {
		line   int
		target expr
		op     string
		value  expr
	}
	exprStmt struct {
		line int
		x    expr
	}
	importStmt struct {
		line int
		// aliases maps the bound name to the imported module.
		aliases map[string]string
	}
)

func (s *assignStmt) stmtLine() int    { return s.line }
func (s *augAssignStmt) stmtLine() int { return s.line }
func (s *exprStmt) stmtLine() int      { return s.line }
func (s *importStmt) stmtLine() int    { return s.line }
