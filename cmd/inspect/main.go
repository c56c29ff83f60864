package main

import (
	"chat-relay/domain"
	"chat-relay/repositories"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"github.com/joho/godotenv"
	"github.com/olekukonko/tablewriter"
	"github.com/samber/lo"
)

const timeLayout = "2006-01-02 15:04:05"

func main() {
	_ = godotenv.Load()
	dbPath := flag.String("db", os.Getenv("BADGER_FILEPATH"), "Path to badger DB")
	what := flag.String("show", "history", "What to list: history or transcripts")
	alias := flag.String("alias", "", "Only this alias (transcripts: empty means every alias)")
	flag.Parse()

	if *dbPath == "" {
		log.Fatal("No database path: use -db or BADGER_FILEPATH")
	}
	db, err := badger.Open(badger.DefaultOptions(*dbPath).
		WithReadOnly(true).
		WithBypassLockGuard(true).
		WithLoggingLevel(badger.WARNING))
	if err != nil {
		log.Fatal("Error while opening Badger: ", err)
	}
	defer db.Close()

	switch *what {
	case "history":
		history := repositories.NewHistoryRepository(db, slog.Default())
		var filter *string
		if *alias != "" {
			filter = alias
		}
		records, err := history.List(filter)
		if err != nil {
			log.Fatal(err)
		}
		renderHistory(os.Stdout, records)
	case "transcripts":
		transcripts := repositories.NewTranscriptRepository(db, slog.Default())
		aliases := []string{*alias}
		if *alias == "" {
			if aliases, err = transcripts.Aliases(); err != nil {
				log.Fatal(err)
			}
		}
		var entries []domain.TranscriptEntry
		for _, a := range aliases {
			lines, err := transcripts.List(a)
			if err != nil {
				log.Fatal(err)
			}
			entries = append(entries, lines...)
		}
		renderTranscripts(os.Stdout, entries)
	default:
		log.Fatalf("Unknown -show value %q", *what)
	}
}

func newTable(out io.Writer, header []string) *tablewriter.Table {
	table := tablewriter.NewWriter(out)
	table.SetHeader(header)
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")
	return table
}

func renderHistory(out io.Writer, records []domain.ConnectionRecord) {
	table := newTable(out, []string{"Alias", "Code", "Remote", "Connected", "Disconnected"})
	for _, r := range records {
		disconnected := "online"
		if r.DisconnectedAt != nil {
			disconnected = r.DisconnectedAt.Local().Format(timeLayout)
		}
		table.Append([]string{r.Alias, r.Code, r.RemoteAddr, r.ConnectedAt.Local().Format(timeLayout), disconnected})
	}
	table.Render()
	online := lo.CountBy(records, func(r domain.ConnectionRecord) bool { return r.Open() })
	fmt.Fprintf(out, "\n%d records, %d open\n", len(records), online)
}

func renderTranscripts(out io.Writer, entries []domain.TranscriptEntry) {
	table := newTable(out, []string{"At", "Sender", "Destination", "Message"})
	for _, e := range entries {
		text := strings.ReplaceAll(e.Text, "\n", " ")
		table.Append([]string{e.At.Local().Format(timeLayout), e.Alias, e.Destination, text})
	}
	table.Render()
	fmt.Fprintf(out, "\n%d lines\n", len(entries))
}
