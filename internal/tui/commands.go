package tui

import (
	"fmt"
	"strings"
)

// command is one parsed input line.
type command struct {
	name string
	args []string
}

// commandHelp lists the slash commands in display order.
var commandHelp = [][2]string{
	{"/voice", "start or stop the voice session (also ctrl+t)"},
	{"/clear", "clear the chat history"},
	{"/upload <file.pdf>", "upload the PDF to chat about"},
	{"/process", "extract information from the uploaded PDF"},
	{"/clear-pdf", "forget the uploaded PDF"},
	{"/jd <file.pdf>", "upload a job description"},
	{"/cvs <file.pdf>...", "upload CVs to compare"},
	{"/compare", "rank the CVs against the job description"},
	{"/clear-matching", "forget the job description and CVs"},
	{"/help", "show this help"},
	{"/quit", "exit"},
}

// argCounts is the minimum number of arguments per command.
var argCounts = map[string]int{
	"voice": 0, "clear": 0, "upload": 1, "process": 0, "clear-pdf": 0,
	"jd": 1, "cvs": 1, "compare": 0, "clear-matching": 0, "help": 0, "quit": 0,
}

// parseInput splits a slash command into name and arguments. Any other
// non-empty line is a chat message, returned as the "say" command.
func parseInput(line string) (command, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return command{}, nil
	}
	if !strings.HasPrefix(line, "/") {
		return command{name: "say", args: []string{line}}, nil
	}
	fields := strings.Fields(line[1:])
	if len(fields) == 0 {
		return command{}, fmt.Errorf("empty command; try /help")
	}
	name, args := fields[0], fields[1:]
	want, ok := argCounts[name]
	if !ok {
		return command{}, fmt.Errorf("unknown command /%s; try /help", name)
	}
	if len(args) < want {
		return command{}, fmt.Errorf("/%s needs a file argument", name)
	}
	return command{name: name, args: args}, nil
}
