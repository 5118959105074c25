package app_test

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"live-quiz-service/internal/app"
	"live-quiz-service/internal/domain"
	"live-quiz-service/internal/game"
	"live-quiz-service/internal/infra/memory"
)

type fakeConn struct {
	id string

	mu   sync.Mutex
	sent []app.Event
}

func newConn(id string) *fakeConn { return &fakeConn{id: id} }

func (c *fakeConn) ID() string { return c.id }

func (c *fakeConn) Send(ev app.Event) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, ev)
	return true
}

func (c *fakeConn) events(kind string) []app.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []app.Event
	for _, ev := range c.sent {
		if ev.Type == kind {
			out = append(out, ev)
		}
	}
	return out
}

func (c *fakeConn) last(t *testing.T, kind string) app.Event {
	t.Helper()
	evs := c.events(kind)
	if len(evs) == 0 {
		t.Fatalf("conn %s: no %s event", c.id, kind)
	}
	return evs[len(evs)-1]
}

func (c *fakeConn) lastError(t *testing.T) domain.Code {
	t.Helper()
	return c.last(t, app.EventError).Payload.(app.ErrorPayload).Code
}

type manualScheduler struct {
	mu    sync.Mutex
	tasks map[app.TaskKey]func()
}

func newManualScheduler() *manualScheduler {
	return &manualScheduler{tasks: make(map[app.TaskKey]func())}
}

func (s *manualScheduler) Schedule(key app.TaskKey, _ time.Duration, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks[key] = fn
}

func (s *manualScheduler) Stop() {}

// Fire runs the pending task for key and reports whether one existed.
func (s *manualScheduler) Fire(key app.TaskKey) bool {
	s.mu.Lock()
	fn, ok := s.tasks[key]
	delete(s.tasks, key)
	s.mu.Unlock()
	if ok {
		fn()
	}
	return ok
}

type harness struct {
	reg   *app.Registry
	store *memory.SessionStore
	sched *manualScheduler
	now   time.Time
}

func newHarness(t *testing.T, opts app.Options) *harness {
	t.Helper()
	h := &harness{
		store: memory.NewSessionStore(),
		sched: newManualScheduler(),
		now:   time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC),
	}
	opts.Scheduler = h.sched
	opts.Clock = func() time.Time { return h.now }
	quizzes := memory.NewQuizRepository(memory.NewStaticQuizLoader(testQuiz()), time.Minute)
	h.reg = app.NewRegistry(quizzes, h.store, opts)
	return h
}

func testQuiz() domain.Quiz {
	return domain.Quiz{
		ID:    "quiz-1",
		Title: "Test quiz",
		Questions: []domain.Question{
			{ID: "q1", Text: "2+2?", TimeLimitSec: 10, Body: domain.MultipleChoice{Options: []string{"3", "4", "5", "6"}, CorrectIndex: 1}},
			{ID: "q2", Text: "Water?", TimeLimitSec: 10, Body: domain.ShortText{CorrectText: "H2O"}},
		},
	}
}

func (h *harness) createGame(t *testing.T, host *fakeConn, settings *game.Overrides) app.GameCreated {
	t.Helper()
	h.reg.Handle(context.Background(), host, app.CreateGame{QuizID: "quiz-1", Settings: settings})
	return host.last(t, app.EventGameCreated).Payload.(app.GameCreated)
}

func (h *harness) join(t *testing.T, pin string, conn *fakeConn, nickname string) app.GameJoined {
	t.Helper()
	h.reg.Handle(context.Background(), conn, app.JoinGame{PIN: pin, Nickname: nickname})
	return conn.last(t, app.EventGameJoined).Payload.(app.GameJoined)
}

func timeoutKey(gameID, questionID string) app.TaskKey {
	return app.TaskKey{SessionID: gameID, QuestionID: questionID, Kind: app.TaskQuestionTimeout}
}

func TestFullGameFlow(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, app.Options{})
	host, alice, bob := newConn("host"), newConn("alice"), newConn("bob")

	created := h.createGame(t, host, nil)
	if !app.ValidPIN(created.PIN) || created.HostKey == "" || created.Quiz.QuestionCount != 2 {
		t.Fatalf("unexpected game:created %+v", created)
	}

	h.join(t, created.PIN, alice, "Alice")
	joined := h.join(t, created.PIN, bob, "Bob")
	if joined.GameID != created.GameID || joined.Avatar == "" {
		t.Fatalf("unexpected game:joined %+v", joined)
	}
	lobby := host.last(t, app.EventLobbyUpdate).Payload.(app.LobbyUpdate)
	if lobby.PlayerCount != 2 || len(lobby.Players) != 2 {
		t.Fatalf("unexpected lobby update %+v", lobby)
	}

	h.reg.Handle(ctx, host, app.StartGame{PIN: created.PIN})
	hostQ := host.last(t, app.EventQuestionStart).Payload.(app.QuestionStart)
	playerQ := alice.last(t, app.EventQuestionStart).Payload.(app.QuestionStart)
	if hostQ.CorrectIndex == nil || *hostQ.CorrectIndex != 1 {
		t.Fatalf("host must see the answer key, got %+v", hostQ)
	}
	if playerQ.CorrectIndex != nil || playerQ.QuestionNumber != 1 || playerQ.TotalQuestions != 2 || len(playerQ.Options) != 4 {
		t.Fatalf("unexpected player question %+v", playerQ)
	}

	h.reg.Handle(ctx, alice, app.SubmitAnswer{QuestionID: "q1", Answer: domain.ChoiceAnswer(1)})
	accepted := alice.last(t, app.EventAnswerAccepted).Payload.(app.AnswerAccepted)
	if !accepted.IsCorrect || !accepted.Provisional {
		t.Fatalf("unexpected answer:accepted %+v", accepted)
	}
	h.reg.Handle(ctx, bob, app.SubmitAnswer{QuestionID: "q1", Answer: domain.ChoiceAnswer(3)})
	count := host.last(t, app.EventAnswerCount).Payload.(app.AnswerCount)
	if count.Answered != 2 || count.Total != 2 {
		t.Fatalf("unexpected answer:count %+v", count)
	}

	if !h.sched.Fire(timeoutKey(created.GameID, "q1")) {
		t.Fatalf("expected a pending question timeout")
	}
	results := bob.last(t, app.EventQuestionResults).Payload.(game.Results)
	if results.TotalAnswers != 2 || results.OptionCounts[1] != 1 || results.OptionCounts[3] != 1 {
		t.Fatalf("unexpected results %+v", results)
	}
	lb := host.last(t, app.EventLeaderboardUpdate).Payload.(app.LeaderboardUpdate)
	if lb.IsFinal || len(lb.Leaderboard) != 2 || lb.Leaderboard[0].Nickname != "Alice" {
		t.Fatalf("unexpected leaderboard %+v", lb)
	}
	you := alice.last(t, app.EventLeaderboardYou).Payload.(app.PlayerStanding)
	// base 1000 + speed 500 (answered instantly) + first bonus 500
	if you.Rank != 1 || you.Score != 2000 {
		t.Fatalf("unexpected leaderboard:you %+v", you)
	}
	if bobYou := bob.last(t, app.EventLeaderboardYou).Payload.(app.PlayerStanding); bobYou.Rank != 2 || bobYou.Score != 0 {
		t.Fatalf("unexpected bob standing %+v", bobYou)
	}

	h.reg.Handle(ctx, host, app.NextQuestion{PIN: created.PIN})
	if q := bob.last(t, app.EventQuestionStart).Payload.(app.QuestionStart); q.QuestionID != "q2" || q.Options != nil {
		t.Fatalf("unexpected second question %+v", q)
	}
	h.reg.Handle(ctx, bob, app.SubmitAnswer{QuestionID: "q2", Answer: domain.TextAnswer("h2o")})

	h.reg.Handle(ctx, host, app.NextQuestion{PIN: created.PIN})
	final := host.last(t, app.EventLeaderboardUpdate).Payload.(app.LeaderboardUpdate)
	if !final.IsFinal {
		t.Fatalf("expected final leaderboard after last question")
	}
	if len(alice.events(app.EventGameEnded)) != 0 {
		t.Fatalf("game must not end before the final leaderboard delay")
	}

	finalKey := app.TaskKey{SessionID: created.GameID, QuestionID: "q2", Kind: app.TaskFinalLeaderboard}
	if !h.sched.Fire(finalKey) {
		t.Fatalf("expected final leaderboard task")
	}
	for _, c := range []*fakeConn{host, alice, bob} {
		if n := len(c.events(app.EventGameEnded)); n != 1 {
			t.Fatalf("conn %s: expected one game:ended, got %d", c.id, n)
		}
	}

	h.reg.Handle(ctx, host, app.NextQuestion{PIN: created.PIN})
	if code := host.lastError(t); code != domain.CodeGameEnded {
		t.Fatalf("expected GAME_ENDED, got %s", code)
	}
}

func TestNextAfterFinalLeaderboardEndsOnce(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, app.Options{})
	host, alice := newConn("host"), newConn("alice")
	created := h.createGame(t, host, nil)
	h.join(t, created.PIN, alice, "Alice")

	h.reg.Handle(ctx, host, app.StartGame{PIN: created.PIN})
	h.reg.Handle(ctx, host, app.NextQuestion{PIN: created.PIN}) // reveal q1
	h.reg.Handle(ctx, host, app.NextQuestion{PIN: created.PIN}) // q2
	h.reg.Handle(ctx, host, app.NextQuestion{PIN: created.PIN}) // reveal q2
	h.reg.Handle(ctx, host, app.NextQuestion{PIN: created.PIN}) // past the end

	if n := len(alice.events(app.EventGameEnded)); n != 1 {
		t.Fatalf("expected one game:ended, got %d", n)
	}
	h.sched.Fire(app.TaskKey{SessionID: created.GameID, QuestionID: "q2", Kind: app.TaskFinalLeaderboard})
	if n := len(alice.events(app.EventGameEnded)); n != 1 {
		t.Fatalf("final leaderboard task must not end the game twice, got %d", n)
	}
}

func TestTimeoutAfterManualNextIsNoop(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, app.Options{})
	host, alice := newConn("host"), newConn("alice")
	created := h.createGame(t, host, nil)
	h.join(t, created.PIN, alice, "Alice")

	h.reg.Handle(ctx, host, app.StartGame{PIN: created.PIN})
	h.reg.Handle(ctx, alice, app.SubmitAnswer{QuestionID: "q1", Answer: domain.ChoiceAnswer(1)})
	h.reg.Handle(ctx, host, app.NextQuestion{PIN: created.PIN}) // reveal q1
	h.reg.Handle(ctx, host, app.NextQuestion{PIN: created.PIN}) // open q2

	if !h.sched.Fire(timeoutKey(created.GameID, "q1")) {
		t.Fatalf("expected the stale q1 timeout to still be pending")
	}
	if n := len(alice.events(app.EventQuestionResults)); n != 1 {
		t.Fatalf("expected one results broadcast, got %d", n)
	}
	if you := alice.last(t, app.EventLeaderboardYou).Payload.(app.PlayerStanding); you.Score != 2000 {
		t.Fatalf("score applied twice: %d", you.Score)
	}
	room, ok := h.reg.Room(created.PIN)
	if !ok || room.Status() != game.StatusQuestion {
		t.Fatalf("stale timeout must not close q2")
	}
}

func TestHostCommandsRequireHost(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, app.Options{})
	host, alice := newConn("host"), newConn("alice")
	created := h.createGame(t, host, nil)
	h.join(t, created.PIN, alice, "Alice")

	for _, cmd := range []app.Command{
		app.StartGame{PIN: created.PIN},
		app.NextQuestion{PIN: created.PIN},
		app.EndGame{PIN: created.PIN},
	} {
		h.reg.Handle(ctx, alice, cmd)
		if code := alice.lastError(t); code != domain.CodeUnauthorized {
			t.Fatalf("%T: expected UNAUTHORIZED, got %s", cmd, code)
		}
	}

	stranger := newConn("stranger")
	h.reg.Handle(ctx, stranger, app.StartGame{PIN: created.PIN})
	if code := stranger.lastError(t); code != domain.CodeUnauthorized {
		t.Fatalf("expected UNAUTHORIZED, got %s", code)
	}
}

func TestHostStateErrors(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, app.Options{})
	host, alice := newConn("host"), newConn("alice")
	created := h.createGame(t, host, nil)

	h.reg.Handle(ctx, host, app.StartGame{PIN: created.PIN})
	if code := host.lastError(t); code != domain.CodeNoPlayers {
		t.Fatalf("expected NO_PLAYERS, got %s", code)
	}
	h.reg.Handle(ctx, host, app.NextQuestion{PIN: created.PIN})
	if code := host.lastError(t); code != domain.CodeNotStarted {
		t.Fatalf("expected NOT_STARTED, got %s", code)
	}

	h.join(t, created.PIN, alice, "Alice")
	h.reg.Handle(ctx, host, app.StartGame{PIN: created.PIN})
	h.reg.Handle(ctx, host, app.StartGame{PIN: created.PIN})
	if code := host.lastError(t); code != domain.CodeAlreadyStarted {
		t.Fatalf("expected ALREADY_STARTED, got %s", code)
	}

	h.reg.Handle(ctx, host, app.CreateGame{QuizID: "missing"})
	if code := host.lastError(t); code != domain.CodeQuizNotFound {
		t.Fatalf("expected QUIZ_NOT_FOUND, got %s", code)
	}
}

func TestJoinErrors(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, app.Options{})
	host := newConn("host")
	created := h.createGame(t, host, nil)
	h.join(t, created.PIN, newConn("alice"), "Alice")

	cases := []struct {
		name string
		pin  string
		nick string
		want domain.Code
	}{
		{"malformed pin", "12ab56", "Bob", domain.CodeInvalidPIN},
		{"unknown pin", "000000", "Bob", domain.CodeGameNotFound},
		{"nickname case-insensitive", created.PIN, "alice", domain.CodeNicknameTaken},
		{"blank nickname", created.PIN, "   ", domain.CodeInvalidNickname},
		{"long nickname", created.PIN, "abcdefghijklmnopqrstu", domain.CodeInvalidNickname},
		{"profane nickname", created.PIN, "ShitLord", domain.CodeInvalidNickname},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			conn := newConn("c-" + tc.name)
			h.reg.Handle(ctx, conn, app.JoinGame{PIN: tc.pin, Nickname: tc.nick})
			if code := conn.lastError(t); code != tc.want {
				t.Fatalf("expected %s, got %s", tc.want, code)
			}
		})
	}

	h.reg.Handle(ctx, host, app.StartGame{PIN: created.PIN})
	late := newConn("late")
	h.reg.Handle(ctx, late, app.JoinGame{PIN: created.PIN, Nickname: "Late"})
	if code := late.lastError(t); code != domain.CodeGameStarted {
		t.Fatalf("expected GAME_STARTED, got %s", code)
	}
}

func TestLateJoinReceivesOpenQuestion(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, app.Options{})
	host := newConn("host")
	lateJoin := true
	created := h.createGame(t, host, &game.Overrides{LateJoin: &lateJoin})
	if !created.Settings.LateJoin {
		t.Fatalf("expected late join override applied")
	}
	h.join(t, created.PIN, newConn("alice"), "Alice")
	h.reg.Handle(ctx, host, app.StartGame{PIN: created.PIN})

	late := newConn("late")
	h.join(t, created.PIN, late, "Late")
	if q := late.last(t, app.EventQuestionStart).Payload.(app.QuestionStart); q.QuestionID != "q1" {
		t.Fatalf("expected open question, got %+v", q)
	}
}

func TestConcurrentCreateGetsUniquePINs(t *testing.T) {
	var counter atomic.Int64
	h := newHarness(t, app.Options{
		NewPIN: func() (string, error) {
			return fmt.Sprintf("%06d", 100000+counter.Add(1)%32), nil
		},
	})

	const games = 16
	var wg sync.WaitGroup
	hosts := make([]*fakeConn, games)
	for i := range hosts {
		hosts[i] = newConn(fmt.Sprintf("host-%d", i))
		wg.Add(1)
		go func(c *fakeConn) {
			defer wg.Done()
			h.reg.Handle(context.Background(), c, app.CreateGame{QuizID: "quiz-1"})
		}(hosts[i])
	}
	wg.Wait()

	seen := make(map[string]bool)
	for _, c := range hosts {
		pin := c.last(t, app.EventGameCreated).Payload.(app.GameCreated).PIN
		if seen[pin] {
			t.Fatalf("pin %s assigned twice", pin)
		}
		seen[pin] = true
	}
	if h.store.Len() != games {
		t.Fatalf("expected %d live games, got %d", games, h.store.Len())
	}
}

func TestPlayerDisconnectAndRejoin(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, app.Options{})
	host, alice := newConn("host"), newConn("alice")
	created := h.createGame(t, host, nil)
	joined := h.join(t, created.PIN, alice, "Alice")
	h.reg.Handle(ctx, host, app.StartGame{PIN: created.PIN})

	h.reg.Disconnect(alice)
	left := host.last(t, app.EventPlayerLeft).Payload.(app.PlayerPresence)
	if left.PlayerID != joined.PlayerID || left.Nickname != "Alice" {
		t.Fatalf("unexpected player:disconnected %+v", left)
	}

	again := newConn("alice-2")
	h.reg.Handle(ctx, again, app.SubmitAnswer{QuestionID: "q1", Answer: domain.ChoiceAnswer(1)})
	if code := again.lastError(t); code != domain.CodePlayerNotFound {
		t.Fatalf("expected PLAYER_NOT_FOUND before rejoin, got %s", code)
	}

	h.reg.Handle(ctx, again, app.Rejoin{PIN: created.PIN, PlayerID: "nobody"})
	if code := again.lastError(t); code != domain.CodePlayerNotFound {
		t.Fatalf("expected PLAYER_NOT_FOUND, got %s", code)
	}

	h.reg.Handle(ctx, again, app.Rejoin{PIN: created.PIN, PlayerID: joined.PlayerID})
	rejoined := again.last(t, app.EventGameRejoined).Payload.(app.GameRejoined)
	if rejoined.Nickname != "Alice" || rejoined.GameStatus != game.StatusQuestion || rejoined.CurrentQuestionIndex != 0 {
		t.Fatalf("unexpected game:rejoined %+v", rejoined)
	}
	if q := again.last(t, app.EventQuestionStart).Payload.(app.QuestionStart); q.QuestionID != "q1" {
		t.Fatalf("expected open question resent, got %+v", q)
	}
	host.last(t, app.EventPlayerBack)

	h.reg.Handle(ctx, again, app.SubmitAnswer{QuestionID: "q1", Answer: domain.ChoiceAnswer(1)})
	again.last(t, app.EventAnswerAccepted)

	// The stale connection closing later must not mark the player offline.
	h.reg.Disconnect(alice)
	if n := len(host.events(app.EventPlayerLeft)); n != 1 {
		t.Fatalf("expected a single player:disconnected, got %d", n)
	}
}

func TestConnectionHoldsOneGame(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, app.Options{})
	host, alice := newConn("host"), newConn("alice")
	created := h.createGame(t, host, nil)
	joined := h.join(t, created.PIN, alice, "Alice")

	h.reg.Handle(ctx, host, app.CreateGame{QuizID: "quiz-1"})
	if code := host.lastError(t); code != domain.CodeAlreadyJoined {
		t.Fatalf("expected ALREADY_JOINED for a second game, got %s", code)
	}
	h.reg.Handle(ctx, host, app.JoinGame{PIN: created.PIN, Nickname: "Hosty"})
	if code := host.lastError(t); code != domain.CodeAlreadyJoined {
		t.Fatalf("expected ALREADY_JOINED for host joining as player, got %s", code)
	}
	h.reg.Handle(ctx, alice, app.JoinGame{PIN: created.PIN, Nickname: "Alice2"})
	if code := alice.lastError(t); code != domain.CodeAlreadyJoined {
		t.Fatalf("expected ALREADY_JOINED for a second nickname, got %s", code)
	}
	if n := len(host.events(app.EventGameCreated)); n != 1 {
		t.Fatalf("expected one game:created, got %d", n)
	}
	room, _ := h.reg.Room(created.PIN)
	if room.PlayerCount() != 1 {
		t.Fatalf("expected one player, got %d", room.PlayerCount())
	}

	// repeating the identity the connection already holds is fine
	h.reg.Handle(ctx, alice, app.Rejoin{PIN: created.PIN, PlayerID: joined.PlayerID})
	alice.last(t, app.EventGameRejoined)

	// a disconnect still releases the one game the connection belongs to
	h.reg.Disconnect(host)
	alice.last(t, app.EventHostLeft)
	if !h.sched.Fire(app.TaskKey{SessionID: created.GameID, Kind: app.TaskHostGrace}) {
		t.Fatalf("expected a host grace task")
	}
	alice.last(t, app.EventGameEnded)

	// once the game is over the connection may start another one
	h.reg.Handle(ctx, alice, app.CreateGame{QuizID: "quiz-1"})
	alice.last(t, app.EventGameCreated)
}

func TestAnswerRejections(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, app.Options{})
	host, alice := newConn("host"), newConn("alice")
	created := h.createGame(t, host, nil)
	h.join(t, created.PIN, alice, "Alice")

	h.reg.Handle(ctx, alice, app.SubmitAnswer{QuestionID: "q1", Answer: domain.ChoiceAnswer(1)})
	if r := alice.last(t, app.EventAnswerRejected).Payload.(app.AnswerRejected); r.Reason != app.ReasonStaleQuestion {
		t.Fatalf("expected stale question in lobby, got %s", r.Reason)
	}

	h.reg.Handle(ctx, host, app.StartGame{PIN: created.PIN})
	h.reg.Handle(ctx, alice, app.SubmitAnswer{QuestionID: "q1", Answer: domain.ChoiceAnswer(0)})
	h.reg.Handle(ctx, alice, app.SubmitAnswer{QuestionID: "q1", Answer: domain.ChoiceAnswer(1)})
	if r := alice.last(t, app.EventAnswerRejected).Payload.(app.AnswerRejected); r.Reason != app.ReasonDuplicateAnswer {
		t.Fatalf("expected duplicate, got %s", r.Reason)
	}

	h.reg.Handle(ctx, host, app.NextQuestion{PIN: created.PIN})
	h.reg.Handle(ctx, alice, app.SubmitAnswer{QuestionID: "q1", Answer: domain.ChoiceAnswer(1)})
	if r := alice.last(t, app.EventAnswerRejected).Payload.(app.AnswerRejected); r.Reason != app.ReasonQuestionClosed {
		t.Fatalf("expected question closed, got %s", r.Reason)
	}
}

func TestHostGraceEndsGame(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, app.Options{})
	host, alice := newConn("host"), newConn("alice")
	created := h.createGame(t, host, nil)
	h.join(t, created.PIN, alice, "Alice")
	h.reg.Handle(ctx, host, app.StartGame{PIN: created.PIN})

	h.reg.Disconnect(host)
	alice.last(t, app.EventHostLeft)

	if !h.sched.Fire(app.TaskKey{SessionID: created.GameID, Kind: app.TaskHostGrace}) {
		t.Fatalf("expected a host grace task")
	}
	alice.last(t, app.EventGameEnded)
	if _, ok := h.reg.Room(created.PIN); ok {
		t.Fatalf("expected game removed after grace period")
	}
}

func TestHostReconnectWithinGrace(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, app.Options{})
	host, alice := newConn("host"), newConn("alice")
	created := h.createGame(t, host, nil)
	h.join(t, created.PIN, alice, "Alice")
	h.reg.Handle(ctx, host, app.StartGame{PIN: created.PIN})
	h.reg.Disconnect(host)

	intruder := newConn("intruder")
	h.reg.Handle(ctx, intruder, app.HostReconnect{PIN: created.PIN, HostKey: "wrong"})
	if code := intruder.lastError(t); code != domain.CodeUnauthorized {
		t.Fatalf("expected UNAUTHORIZED, got %s", code)
	}

	back := newConn("host-2")
	h.reg.Handle(ctx, back, app.HostReconnect{PIN: created.PIN, HostKey: created.HostKey})
	rejoined := back.last(t, app.EventHostRejoined).Payload.(app.HostRejoined)
	if rejoined.GameStatus != game.StatusQuestion || len(rejoined.Players) != 1 {
		t.Fatalf("unexpected game:host_rejoined %+v", rejoined)
	}
	if q := back.last(t, app.EventQuestionStart).Payload.(app.QuestionStart); q.CorrectIndex == nil {
		t.Fatalf("expected host view of the open question")
	}
	alice.last(t, app.EventHostBack)

	h.sched.Fire(app.TaskKey{SessionID: created.GameID, Kind: app.TaskHostGrace})
	if _, ok := h.reg.Room(created.PIN); !ok {
		t.Fatalf("game must survive a grace expiry after reconnect")
	}

	h.reg.Handle(ctx, back, app.NextQuestion{PIN: created.PIN})
	back.last(t, app.EventQuestionResults)
}

func TestEndGameClosesRoom(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, app.Options{})
	host, alice := newConn("host"), newConn("alice")
	created := h.createGame(t, host, nil)
	h.join(t, created.PIN, alice, "Alice")

	h.reg.Handle(ctx, host, app.EndGame{PIN: created.PIN})
	alice.last(t, app.EventGameEnded)
	if _, ok := h.reg.Room(created.PIN); ok {
		t.Fatalf("expected room removed")
	}

	h.reg.Handle(ctx, host, app.NextQuestion{PIN: created.PIN})
	if code := host.lastError(t); code != domain.CodeGameNotFound {
		t.Fatalf("expected GAME_NOT_FOUND, got %s", code)
	}
}

func TestSweepRemovesExpiredGames(t *testing.T) {
	h := newHarness(t, app.Options{MaxAge: 2 * time.Hour})
	host, alice := newConn("host"), newConn("alice")
	old := h.createGame(t, host, nil)
	h.join(t, old.PIN, alice, "Alice")

	h.now = h.now.Add(90 * time.Minute)
	fresh := h.createGame(t, newConn("host-2"), nil)

	if n := h.reg.Sweep(h.now); n != 0 {
		t.Fatalf("nothing should expire yet, swept %d", n)
	}

	h.now = h.now.Add(31 * time.Minute)
	if n := h.reg.Sweep(h.now); n != 1 {
		t.Fatalf("expected one expired game, swept %d", n)
	}
	if _, ok := h.reg.Room(old.PIN); ok {
		t.Fatalf("expected old game removed")
	}
	if _, ok := h.reg.Room(fresh.PIN); !ok {
		t.Fatalf("expected fresh game kept")
	}
	alice.last(t, app.EventGameEnded)
}

func TestRunStopsWithContext(t *testing.T) {
	h := newHarness(t, app.Options{SweepInterval: time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.reg.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("run did not stop")
	}
}

type panickyPolicy struct {
	*app.WordFilter
}

func (p panickyPolicy) Avatar(nickname string) string {
	if nickname == "boom" {
		panic("avatar exploded")
	}
	return p.WordFilter.Avatar(nickname)
}

func TestPanicIsReportedAsInternalError(t *testing.T) {
	h := newHarness(t, app.Options{Policy: panickyPolicy{app.NewWordFilter()}})
	host := newConn("host")
	created := h.createGame(t, host, nil)

	bad := newConn("bad")
	h.reg.Handle(context.Background(), bad, app.JoinGame{PIN: created.PIN, Nickname: "boom"})
	if code := bad.lastError(t); code != domain.CodeInternal {
		t.Fatalf("expected INTERNAL_ERROR, got %s", code)
	}

	h.join(t, created.PIN, newConn("alice"), "Alice")
}

func TestHeartbeat(t *testing.T) {
	h := newHarness(t, app.Options{})
	conn := newConn("c")
	h.reg.Handle(context.Background(), conn, app.Heartbeat{})
	if reply := conn.last(t, app.EventHeartbeat).Payload.(app.HeartbeatReply); reply.Time != h.now.UnixMilli() {
		t.Fatalf("unexpected heartbeat %+v", reply)
	}
}
