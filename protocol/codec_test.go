package protocol

import (
	"bytes"
	"chat-relay/domain"
	"chat-relay/errors"
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncode_Literal_Forms(t *testing.T) {
	req := require.New(t)

	req.Equal("MSG_ALL:hola", MustEncode(domain.PublicMessage{Text: "hola"}))
	req.Equal("MSG_PRIVATE:Beto:secreto", MustEncode(domain.PrivateMessage{To: "Beto", Text: "secreto"}))
	req.Equal("FILE:Todos:a.txt:aGk=", MustEncode(domain.FileTransfer{Peer: "Todos", Filename: "a.txt", Payload: []byte("hi")}))
	req.Equal("ALIAS_TAKEN", MustEncode(domain.AliasTaken{}))
	req.Equal("salir", MustEncode(domain.Leave{}))
	req.Equal("WELCOME:Ana", MustEncode(domain.Welcome{Alias: "Ana"}))
	req.Equal("USERS:123:Ana:456:Beto", MustEncode(domain.UserListSnapshot{Entries: []domain.UserEntry{
		{Code: "123", Alias: "Ana"},
		{Code: "456", Alias: "Beto"},
	}}))
	req.Equal("USERS", MustEncode(domain.UserListSnapshot{}))
}

func TestEncode_Unknown_Frame(t *testing.T) {
	req := require.New(t)
	_, err := Encode(nil)
	req.ErrorIs(err, errors.ErrUnknownFrame)
}

func TestDecode_Round_Trip(t *testing.T) {
	frames := []domain.Frame{
		domain.PublicMessage{Text: "hola"},
		domain.PublicMessage{Text: ""},
		domain.PublicMessage{Text: "hora: 10:30\nsegunda línea 100%"},
		domain.PrivateMessage{To: "Beto", Text: "secreto"},
		domain.PrivateMessage{To: "a:b", Text: "x:y:z"},
		domain.FileTransfer{Peer: "Ana", Filename: "c:\\notas.txt", Payload: []byte{0, 1, 2, 255}},
		domain.UserListSnapshot{Entries: []domain.UserEntry{{Code: "123", Alias: "Ana|x,y;z"}}},
		domain.UserListSnapshot{Entries: []domain.UserEntry{}},
		domain.SystemPrompt{Text: domain.AliasPrompt},
		domain.Welcome{Alias: "Ana"},
		domain.Hello{Alias: "Ana"},
		domain.Notice{Text: "Ana (Todos): hola"},
		domain.AliasTaken{},
		domain.Leave{},
	}
	for _, frame := range frames {
		t.Run(string(frame.Tag()), func(t *testing.T) {
			req := require.New(t)
			line, err := Encode(frame)
			req.NoError(err)
			req.NotContains(line, "\n")

			decoded, err := Decode(line)
			req.NoError(err)
			req.Equal(frame, decoded)
		})
	}
}

func TestDecode_Leave_Is_Case_Insensitive(t *testing.T) {
	req := require.New(t)
	for _, line := range []string{"salir", "SALIR", "  Salir \r\n"} {
		frame, err := Decode(line)
		req.NoError(err)
		req.Equal(domain.Leave{}, frame)
	}
}

func TestDecode_Malformed(t *testing.T) {
	lines := []string{
		"MSG_PRIVATE:onlyalias",
		"MSG_PRIVATE:a:b:c",
		"FILE:Todos:name",
		"FILE:Todos:name:not base64!",
		"MSG_ALL:bad%zzescape",
		"USERS:123",
		"ALIAS_TAKEN:extra",
		"MSG_ALL",
	}
	for _, line := range lines {
		t.Run(line, func(t *testing.T) {
			req := require.New(t)
			_, err := Decode(line)
			req.ErrorIs(err, errors.ErrMalformedFrame)
		})
	}
}

func TestDecode_Unknown_Tag(t *testing.T) {
	req := require.New(t)
	_, err := Decode("hola a todos")
	req.ErrorIs(err, errors.ErrUnknownFrame)
}

// The content of a message can no longer be mistaken for a user list.
func TestDecode_Text_Looking_Like_User_List(t *testing.T) {
	req := require.New(t)
	frame, err := Decode(MustEncode(domain.Notice{Text: "Ana (Todos): 1|a, 2|b"}))
	req.NoError(err)
	req.Equal(domain.Notice{Text: "Ana (Todos): 1|a, 2|b"}, frame)
}

func TestFile_Round_Trip_Sizes(t *testing.T) {
	for _, size := range []int{0, 1, 2, 3, 1024, 1 << 20} {
		req := require.New(t)
		payload := make([]byte, size)
		_, err := rand.Read(payload)
		req.NoError(err)

		line := MustEncode(domain.FileTransfer{Peer: "Beto", Filename: "blob.bin", Payload: payload})
		frame, err := Decode(line)
		req.NoError(err)

		file, ok := frame.(domain.FileTransfer)
		req.True(ok)
		req.True(bytes.Equal(payload, file.Payload), "size %d", size)
	}
}

func TestDecodeAlias(t *testing.T) {
	req := require.New(t)
	req.Equal("Ana", DecodeAlias("HELLO:Ana"))
	req.Equal("Ana:B", DecodeAlias("HELLO:Ana%3AB"))
	req.Equal("Ana", DecodeAlias("  Ana \n"))
}
