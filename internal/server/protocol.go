package server

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/libraz/mygramdb-go/internal/core/domain"
)

// CommandKind names one of the wire protocol's command verbs.
type CommandKind uint8

const (
	CmdSearch CommandKind = iota
	CmdCount
	CmdGet
	CmdInfo
	CmdConfig
	CmdSave
	CmdLoad
	CmdReplicationStatus
	CmdReplicationStop
	CmdReplicationStart
	CmdConfigHelp
)

// Command is one parsed request line.
type Command struct {
	Kind     CommandKind
	Table    string
	Text     string
	PK       string
	NotTerms []string
	Filters  []domain.FilterPredicate
	Sort     *domain.SortSpec
	Limit    int
	Offset   int
	Debug    bool
	Path     string // CONFIG HELP <path>
}

// ParseLine parses one `\r\n`-stripped request line into a Command.
func ParseLine(line string) (Command, error) {
	fields := tokenizeLine(line)
	if len(fields) == 0 {
		return Command{}, fmt.Errorf("%w: empty command", domain.ErrInvalidInput)
	}

	verb := strings.ToUpper(fields[0])
	switch verb {
	case "SEARCH":
		return parseSearchOrCount(CmdSearch, fields[1:])
	case "COUNT":
		return parseSearchOrCount(CmdCount, fields[1:])
	case "GET":
		if len(fields) != 3 {
			return Command{}, fmt.Errorf("%w: GET <table> <pk>", domain.ErrInvalidInput)
		}
		return Command{Kind: CmdGet, Table: fields[1], PK: fields[2]}, nil
	case "INFO":
		return Command{Kind: CmdInfo}, nil
	case "CONFIG":
		if len(fields) >= 2 && strings.ToUpper(fields[1]) == "HELP" {
			path := ""
			if len(fields) >= 3 {
				path = fields[2]
			}
			return Command{Kind: CmdConfigHelp, Path: path}, nil
		}
		return Command{Kind: CmdConfig}, nil
	case "SAVE":
		return Command{Kind: CmdSave}, nil
	case "LOAD":
		return Command{Kind: CmdLoad}, nil
	case "REPLICATION":
		if len(fields) != 2 {
			return Command{}, fmt.Errorf("%w: REPLICATION <STATUS|STOP|START>", domain.ErrInvalidInput)
		}
		switch strings.ToUpper(fields[1]) {
		case "STATUS":
			return Command{Kind: CmdReplicationStatus}, nil
		case "STOP":
			return Command{Kind: CmdReplicationStop}, nil
		case "START":
			return Command{Kind: CmdReplicationStart}, nil
		default:
			return Command{}, fmt.Errorf("%w: unknown REPLICATION subcommand %q", domain.ErrInvalidInput, fields[1])
		}
	default:
		return Command{}, fmt.Errorf("%w: unknown command %q", domain.ErrInvalidInput, fields[0])
	}
}

// parseSearchOrCount parses the shared
// "<table> <text> [NOT <term>]* [FILTER <col><op><val>]* [SORT <col> <asc|desc>] [LIMIT <n>] [OFFSET <n>]"
// tail for both SEARCH and COUNT.
func parseSearchOrCount(kind CommandKind, fields []string) (Command, error) {
	if len(fields) < 2 {
		return Command{}, fmt.Errorf("%w: %s <table> <text>", domain.ErrInvalidInput, kindName(kind))
	}
	cmd := Command{Kind: kind, Table: fields[0], Text: fields[1]}

	i := 2
	for i < len(fields) {
		switch strings.ToUpper(fields[i]) {
		case "NOT":
			if i+1 >= len(fields) {
				return Command{}, fmt.Errorf("%w: NOT requires a term", domain.ErrInvalidInput)
			}
			cmd.NotTerms = append(cmd.NotTerms, fields[i+1])
			i += 2
		case "FILTER":
			if i+1 >= len(fields) {
				return Command{}, fmt.Errorf("%w: FILTER requires a clause", domain.ErrInvalidInput)
			}
			pred, err := parseFilterClause(fields[i+1])
			if err != nil {
				return Command{}, err
			}
			cmd.Filters = append(cmd.Filters, pred)
			i += 2
		case "SORT":
			if i+2 >= len(fields) {
				return Command{}, fmt.Errorf("%w: SORT requires <col> <asc|desc>", domain.ErrInvalidInput)
			}
			dir := domain.SortAscending
			switch strings.ToLower(fields[i+2]) {
			case "asc":
				dir = domain.SortAscending
			case "desc":
				dir = domain.SortDescending
			default:
				return Command{}, fmt.Errorf("%w: SORT direction must be asc or desc", domain.ErrInvalidInput)
			}
			cmd.Sort = &domain.SortSpec{Column: fields[i+1], Direction: dir}
			i += 3
		case "LIMIT":
			if i+1 >= len(fields) {
				return Command{}, fmt.Errorf("%w: LIMIT requires a number", domain.ErrInvalidInput)
			}
			n, err := strconv.Atoi(fields[i+1])
			if err != nil {
				return Command{}, fmt.Errorf("%w: LIMIT must be an integer", domain.ErrInvalidInput)
			}
			cmd.Limit = n
			i += 2
		case "OFFSET":
			if i+1 >= len(fields) {
				return Command{}, fmt.Errorf("%w: OFFSET requires a number", domain.ErrInvalidInput)
			}
			n, err := strconv.Atoi(fields[i+1])
			if err != nil {
				return Command{}, fmt.Errorf("%w: OFFSET must be an integer", domain.ErrInvalidInput)
			}
			cmd.Offset = n
			i += 2
		case "DEBUG":
			cmd.Debug = true
			i++
		default:
			return Command{}, fmt.Errorf("%w: unexpected token %q", domain.ErrInvalidInput, fields[i])
		}
	}
	return cmd, nil
}

// parseFilterClause parses one "<col><op><val>" clause, e.g. "status=1",
// "price>=9.99", "tag!=draft", "id IN(1,2,3)", "deleted_at IS NULL".
func parseFilterClause(clause string) (domain.FilterPredicate, error) {
	upper := strings.ToUpper(clause)
	switch {
	case strings.HasSuffix(upper, "IS NOT NULL"):
		col := strings.TrimSpace(clause[:len(clause)-len("IS NOT NULL")])
		return domain.FilterPredicate{Column: col, Op: domain.OpIsNotNull}, nil
	case strings.HasSuffix(upper, "IS NULL"):
		col := strings.TrimSpace(clause[:len(clause)-len("IS NULL")])
		return domain.FilterPredicate{Column: col, Op: domain.OpIsNull}, nil
	}

	if idx := strings.Index(upper, " IN("); idx > 0 && strings.HasSuffix(clause, ")") {
		col := strings.TrimSpace(clause[:idx])
		var values []domain.FilterValue
		for _, part := range strings.Split(clause[idx+len(" IN("):len(clause)-1], ",") {
			values = append(values, domain.NewFilterBytes([]byte(strings.TrimSpace(part))))
		}
		return domain.FilterPredicate{Column: col, Op: domain.OpIn, Values: values}, nil
	}

	for _, op := range []struct {
		token string
		kind  domain.FilterOp
	}{
		{">=", domain.OpGe}, {"<=", domain.OpLe}, {"!=", domain.OpNe},
		{"=", domain.OpEq}, {"<", domain.OpLt}, {">", domain.OpGt},
	} {
		if idx := strings.Index(clause, op.token); idx > 0 {
			col := clause[:idx]
			rest := clause[idx+len(op.token):]
			if strings.HasPrefix(strings.ToUpper(rest), "IN(") && strings.HasSuffix(rest, ")") {
				inner := rest[3 : len(rest)-1]
				var values []domain.FilterValue
				for _, part := range strings.Split(inner, ",") {
					values = append(values, domain.NewFilterBytes([]byte(strings.TrimSpace(part))))
				}
				return domain.FilterPredicate{Column: col, Op: domain.OpIn, Values: values}, nil
			}
			return domain.FilterPredicate{Column: col, Op: op.kind, Value: domain.NewFilterBytes([]byte(rest))}, nil
		}
	}
	return domain.FilterPredicate{}, fmt.Errorf("%w: unparsable filter clause %q", domain.ErrInvalidInput, clause)
}

// tokenizeLine splits a request line on whitespace, honoring double-quoted
// segments so a SEARCH text argument may contain spaces.
func tokenizeLine(line string) []string {
	var fields []string
	var cur strings.Builder
	inQuotes := false
	flush := func() {
		if cur.Len() > 0 {
			fields = append(fields, cur.String())
			cur.Reset()
		}
	}
	for _, r := range line {
		switch {
		case r == '"':
			inQuotes = !inQuotes
		case r == ' ' && !inQuotes:
			flush()
		default:
			cur.WriteRune(r)
		}
	}
	flush()
	return fields
}

func kindName(kind CommandKind) string {
	if kind == CmdCount {
		return "COUNT"
	}
	return "SEARCH"
}
