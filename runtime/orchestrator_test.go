package runtime

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/errors"
	"chat-relay/mocks"
	"chat-relay/runtime/workers"
	"context"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

// chanListener hands out the connections pushed on conns.
type chanListener struct {
	conns     chan contract.Conn
	closed    chan struct{}
	closeOnce sync.Once
}

func newChanListener() *chanListener {
	return &chanListener{conns: make(chan contract.Conn, 16), closed: make(chan struct{})}
}

func (l *chanListener) Accept() (contract.Conn, error) {
	select {
	case conn := <-l.conns:
		return conn, nil
	case <-l.closed:
		return nil, errors.ErrConnClosed
	}
}

func (l *chanListener) Addr() string { return "chan://relay" }

func (l *chanListener) Close() error {
	l.closeOnce.Do(func() { close(l.closed) })
	return nil
}

type relayFixture struct {
	orchestrator *Orchestrator
	listener     *chanListener
	cancel       context.CancelFunc
	served       chan error
}

func startRelay(t *testing.T, observers ...contract.IUserListObserver) relayFixture {
	ctrl := gomock.NewController(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)

	history := mocks.NewMockIHistoryStore(ctrl)
	history.EXPECT().RecordConnect(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(nil).AnyTimes()
	history.EXPECT().RecordDisconnect(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil).AnyTimes()
	transcripts := mocks.NewMockITranscriptStore(ctrl)
	transcripts.EXPECT().Append(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil).AnyTimes()

	registry := NewRegistry()
	registry.code = func() string { return "100" }
	o := NewOrchestrator(log, workers.NewSupervisor(log, 10*time.Millisecond),
		registry, NewMessageQueue(), history, transcripts, 0, observers...)

	ctx, cancel := context.WithCancel(context.Background())
	o.Start(ctx)
	f := relayFixture{orchestrator: o, listener: newChanListener(), cancel: cancel, served: make(chan error, 1)}
	go func() { f.served <- o.Serve(ctx, f.listener) }()
	return f
}

func (f relayFixture) stop(t *testing.T) {
	f.cancel()
	select {
	case err := <-f.served:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("serve did not return")
	}
	f.orchestrator.Stop()
}

// join connects a client under alias and waits for the welcome.
func (f relayFixture) join(t *testing.T, alias string) *fakeConn {
	conn := newFakeConn()
	conn.in <- alias
	f.listener.conns <- conn
	waitFor(t, conn, "WELCOME:"+alias)
	return conn
}

// waitFor consumes frames from conn until want shows up.
func waitFor(t *testing.T, conn *fakeConn, want string) {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		frame, ok := conn.next(time.Until(deadline))
		if ok && frame == want {
			return
		}
	}
	t.Fatalf("frame %q never arrived, got %v", want, conn.frames())
}

func TestOrchestrator_Public_Private_And_Leave(t *testing.T) {
	req := require.New(t)
	f := startRelay(t)

	// Given Ana, Beto and Caro joined in that order
	ana := f.join(t, "Ana")
	beto := f.join(t, "Beto")
	caro := f.join(t, "Caro")
	for _, conn := range []*fakeConn{ana, beto, caro} {
		waitFor(t, conn, "USERS:100:Ana:100:Beto:100:Caro")
	}

	// When Ana talks to everybody
	ana.in <- "MSG_ALL:hola"
	// Then Beto and Caro both read it
	waitFor(t, beto, "TEXT:Ana (Todos)%3A hola")
	waitFor(t, caro, "TEXT:Ana (Todos)%3A hola")

	// When Beto whispers to Caro
	beto.in <- "MSG_PRIVATE:Caro:nos vemos"
	waitFor(t, caro, "TEXT:Beto (Privado)%3A nos vemos")

	// When Caro leaves
	caro.in <- "salir"
	// Then the others get the shorter list
	waitFor(t, ana, "USERS:100:Ana:100:Beto")
	waitFor(t, beto, "USERS:100:Ana:100:Beto")
	req.True(caro.isClosed())

	// And Ana never received her own message or Beto's whisper
	for _, frame := range ana.frames() {
		req.NotContains(frame, "hola")
		req.NotContains(frame, "nos vemos")
	}

	f.stop(t)
	req.True(ana.isClosed())
	req.True(beto.isClosed())
	req.Zero(f.orchestrator.Registry().Len())
}

func TestOrchestrator_Messages_From_One_Sender_Keep_Their_Order(t *testing.T) {
	req := require.New(t)
	f := startRelay(t)
	ana := f.join(t, "Ana")
	beto := f.join(t, "Beto")

	for _, text := range []string{"uno", "dos", "tres", "cuatro"} {
		ana.in <- "MSG_ALL:" + text
	}
	waitFor(t, beto, "TEXT:Ana (Todos)%3A cuatro")

	var texts []string
	for _, frame := range beto.frames() {
		if strings.HasPrefix(frame, "TEXT:") {
			texts = append(texts, strings.TrimPrefix(frame, "TEXT:Ana (Todos)%3A "))
		}
	}
	req.Equal([]string{"uno", "dos", "tres", "cuatro"}, texts)
	f.stop(t)
}

func TestOrchestrator_Duplicate_Alias_Is_Refused(t *testing.T) {
	f := startRelay(t)
	f.join(t, "Ana")

	// Given a second client asking for Ana first
	intruder := newFakeConn()
	intruder.in <- "Ana"
	intruder.in <- "Ana2"
	f.listener.conns <- intruder

	// Then it is refused once, then admitted under its second choice
	waitFor(t, intruder, "ALIAS_TAKEN")
	waitFor(t, intruder, "WELCOME:Ana2")
	f.stop(t)
}

type recordingObserver struct {
	mu    sync.Mutex
	lists [][]string
}

func (r *recordingObserver) PublishUsers(users []domain.UserEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var aliases []string
	for _, u := range users {
		aliases = append(aliases, u.Alias)
	}
	r.lists = append(r.lists, aliases)
}

func (r *recordingObserver) last() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.lists) == 0 {
		return nil
	}
	return r.lists[len(r.lists)-1]
}

func TestOrchestrator_Notifies_User_List_Observers(t *testing.T) {
	req := require.New(t)
	observer := &recordingObserver{}
	f := startRelay(t, observer)

	ana := f.join(t, "Ana")
	f.join(t, "Beto")
	waitFor(t, ana, "USERS:100:Ana:100:Beto")
	req.Eventually(func() bool {
		return len(observer.last()) == 2
	}, 2*time.Second, 10*time.Millisecond)
	req.Equal([]string{"Ana", "Beto"}, observer.last())

	ana.in <- "SALIR"
	req.Eventually(func() bool {
		last := observer.last()
		return len(last) == 1 && last[0] == "Beto"
	}, 2*time.Second, 10*time.Millisecond)
	f.stop(t)
}

func TestOrchestrator_Stop_Without_Start(t *testing.T) {
	ctrl := gomock.NewController(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	o := NewOrchestrator(log, workers.NewSupervisor(log, 0), NewRegistry(), NewMessageQueue(),
		mocks.NewMockIHistoryStore(ctrl), mocks.NewMockITranscriptStore(ctrl), 0)

	done := make(chan struct{})
	go func() {
		o.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("stop blocked")
	}
}
