package repositories

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTranscriptRepository_Append_And_List(t *testing.T) {
	req := require.New(t)
	repository := NewTranscriptRepository(openTestDB(t), slog.Default())
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	tick := 0
	repository.now = func() time.Time {
		tick++
		return at.Add(time.Duration(tick) * time.Second)
	}

	// When Ana and Beto send a few lines
	req.NoError(repository.Append("Ana", "hola", "Todos"))
	req.NoError(repository.Append("Beto", "buenas", "Ana"))
	req.NoError(repository.Append("Ana", "Archivo enviado: a.pdf", "Caro"))

	// Then each alias gets back only its own lines, oldest first
	ana, err := repository.List("Ana")
	req.NoError(err)
	req.Len(ana, 2)
	req.Equal("hola", ana[0].Text)
	req.Equal("Todos", ana[0].Destination)
	req.Equal(at.Add(time.Second), ana[0].At)
	req.Equal("Archivo enviado: a.pdf", ana[1].Text)
	req.Equal("Caro", ana[1].Destination)

	beto, err := repository.List("Beto")
	req.NoError(err)
	req.Len(beto, 1)
	req.Equal("Beto", beto[0].Alias)

	aliases, err := repository.Aliases()
	req.NoError(err)
	req.Equal([]string{"Ana", "Beto"}, aliases)
}

func TestTranscriptRepository_Unknown_Alias(t *testing.T) {
	req := require.New(t)
	repository := NewTranscriptRepository(openTestDB(t), slog.Default())

	entries, err := repository.List("Nadie")
	req.NoError(err)
	req.Empty(entries)
}

func TestTranscriptRepository_Text_With_Separators(t *testing.T) {
	req := require.New(t)
	repository := NewTranscriptRepository(openTestDB(t), slog.Default())

	req.NoError(repository.Append("a:b", "x: y\nz", "Todos"))
	entries, err := repository.List("a:b")
	req.NoError(err)
	req.Len(entries, 1)
	req.Equal("x: y\nz", entries[0].Text)

	aliases, err := repository.Aliases()
	req.NoError(err)
	req.Equal([]string{"a:b"}, aliases)
}
