package main

type Config struct {
	DataDir    string `name:"state-history-dir" default:"./state-history" help:"Directory holding the three history log files"`
	DeleteData bool   `name:"delete-state-history" help:"Remove the state-history directory contents on startup before opening"`
	Endpoint   string `name:"state-history-endpoint" default:"0.0.0.0:8080" help:"host:port the session server listens on"`

	Debug     bool     `help:"Enable debug logging (all categories)"`
	LogFilter []string `name:"log-filter" default:"startup,historylog,statecapture,session" help:"Log category filter (comma-separated)"`
	LogFile   string   `name:"log-file" help:"Log output file path (logs to both stdout and file when set)"`
}
