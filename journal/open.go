package journal

import "fmt"

// Options selects and configures a sink. Type is one of "csv", "sqlite",
// "jsonl", "memory" or "none".
type Options struct {
	Type       string
	TradesFile string
	EquityFile string
	DBPath     string
	JSONLPath  string
}

func Open(o Options) (Journal, error) {
	switch o.Type {
	case "csv":
		return NewCSV(o.TradesFile, o.EquityFile)
	case "sqlite":
		return NewSQLite(o.DBPath)
	case "jsonl":
		return NewJSONL(o.JSONLPath)
	case "memory":
		return &Memory{}, nil
	case "", "none":
		return Nop{}, nil
	}
	return nil, fmt.Errorf("unknown journal type %q", o.Type)
}
