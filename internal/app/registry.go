package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"live-quiz-service/internal/domain"
	"live-quiz-service/internal/game"
)

const maxPINAttempts = 100

// Conn is one client connection as seen by the registry. Send must not block
// and must not call back into the registry; it reports false when the event
// was dropped.
type Conn interface {
	ID() string
	Send(Event) bool
}

// Options tune a Registry. Zero values fall back to the defaults below.
type Options struct {
	Defaults              game.Settings
	MaxAge                time.Duration
	SweepInterval         time.Duration
	HostGrace             time.Duration
	FinalLeaderboardDelay time.Duration

	Scheduler Scheduler
	Policy    JoinPolicy
	NewPIN    PINGenerator
	NewID     func() string
	Clock     func() time.Time
}

func (o Options) withDefaults() Options {
	if o.Defaults == (game.Settings{}) {
		o.Defaults = game.DefaultSettings()
	}
	if o.MaxAge <= 0 {
		o.MaxAge = 2 * time.Hour
	}
	if o.SweepInterval <= 0 {
		o.SweepInterval = 30 * time.Minute
	}
	if o.HostGrace <= 0 {
		o.HostGrace = 5 * time.Minute
	}
	if o.FinalLeaderboardDelay <= 0 {
		o.FinalLeaderboardDelay = 5 * time.Second
	}
	if o.Scheduler == nil {
		o.Scheduler = NewTimerScheduler()
	}
	if o.Policy == nil {
		o.Policy = NewWordFilter()
	}
	if o.NewPIN == nil {
		o.NewPIN = RandomPIN
	}
	if o.NewID == nil {
		o.NewID = func() string { return strings.ReplaceAll(uuid.NewString(), "-", "") }
	}
	if o.Clock == nil {
		o.Clock = time.Now
	}
	return o
}

type role int

const (
	roleHost role = iota + 1
	rolePlayer
)

type identity struct {
	role     role
	pin      string
	playerID string
}

// Room is a live game together with the connections attached to it. All
// fields are guarded by mu; the game id, PIN and creation time never change.
type Room struct {
	mu       sync.Mutex
	game     *game.Session
	hostKey  string
	host     Conn
	players  map[string]Conn
	hostGen  int
	finished bool
	closed   bool
}

// NewRoom wraps a session. host may be nil until a host connection binds.
func NewRoom(session *game.Session, hostKey string, host Conn) *Room {
	return &Room{
		game:    session,
		hostKey: hostKey,
		host:    host,
		players: make(map[string]Conn),
	}
}

func (room *Room) PIN() string          { return room.game.PIN() }
func (room *Room) GameID() string       { return room.game.ID() }
func (room *Room) CreatedAt() time.Time { return room.game.CreatedAt() }

func (room *Room) Status() game.Status {
	room.mu.Lock()
	defer room.mu.Unlock()
	return room.game.Status()
}

func (room *Room) PlayerCount() int {
	room.mu.Lock()
	defer room.mu.Unlock()
	return room.game.PlayerCount()
}

func (room *Room) toHost(ev Event) {
	if room.host != nil {
		deliver(room.host, ev)
	}
}

// toPlayers sends to every connected player in join order.
func (room *Room) toPlayers(ev Event) {
	for _, p := range room.game.Players() {
		if c, ok := room.players[p.ID]; ok && p.Connected {
			deliver(c, ev)
		}
	}
}

func (room *Room) toPlayer(playerID string, ev Event) {
	if c, ok := room.players[playerID]; ok {
		deliver(c, ev)
	}
}

func (room *Room) toAll(ev Event) {
	room.toHost(ev)
	room.toPlayers(ev)
}

func deliver(c Conn, ev Event) {
	if !c.Send(ev) {
		log.Printf("dropped %s for conn %s", ev.Type, c.ID())
	}
}

// Registry maps PINs to rooms and connections to their role, and routes
// every inbound command to the right game.
type Registry struct {
	quizzes  QuizRepository
	sessions SessionRepository
	opts     Options

	mu    sync.Mutex
	conns map[string]identity
}

func NewRegistry(quizzes QuizRepository, sessions SessionRepository, opts Options) *Registry {
	return &Registry{
		quizzes:  quizzes,
		sessions: sessions,
		opts:     opts.withDefaults(),
		conns:    make(map[string]identity),
	}
}

// Room returns the live room registered under pin.
func (r *Registry) Room(pin string) (*Room, bool) {
	room, ok := r.sessions.Get(pin)
	if !ok {
		return nil, false
	}
	room.mu.Lock()
	closed := room.closed
	room.mu.Unlock()
	return room, !closed
}

// Close stops pending timers.
func (r *Registry) Close() {
	r.opts.Scheduler.Stop()
}

// Handle processes one inbound command. Rejections and failures are reported
// to conn as error events; a panic is recovered and reported as INTERNAL_ERROR.
func (r *Registry) Handle(ctx context.Context, conn Conn, cmd Command) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Printf("recovered panic handling %T from conn %s: %v", cmd, conn.ID(), rec)
			sendError(conn, domain.ErrInternal)
		}
	}()

	var err error
	switch c := cmd.(type) {
	case CreateGame:
		err = r.createGame(ctx, conn, c)
	case StartGame:
		err = r.startGame(conn, c)
	case NextQuestion:
		err = r.nextQuestion(conn, c)
	case EndGame:
		err = r.endGame(conn, c)
	case HostReconnect:
		err = r.hostReconnect(conn, c)
	case JoinGame:
		err = r.joinGame(conn, c)
	case SubmitAnswer:
		err = r.submitAnswer(conn, c)
	case Rejoin:
		err = r.rejoin(conn, c)
	case Heartbeat:
		conn.Send(Event{Type: EventHeartbeat, Payload: HeartbeatReply{Time: r.opts.Clock().UnixMilli()}})
	default:
		err = domain.Errorf(domain.CodeInvalidMessage, "unsupported command %T", cmd)
	}
	if err != nil {
		sendError(conn, err)
	}
}

func sendError(conn Conn, err error) {
	var de *domain.Error
	if !errors.As(err, &de) {
		log.Printf("conn %s: %v", conn.ID(), err)
		de = domain.ErrInternal
	}
	conn.Send(Event{Type: EventError, Payload: ErrorPayload{Code: de.Code, Message: de.Message}})
}

func (r *Registry) createGame(ctx context.Context, conn Conn, c CreateGame) error {
	if c.QuizID == "" {
		return domain.Errorf(domain.CodeInvalidMessage, "quizId is required")
	}
	if err := r.checkFree(conn, identity{}); err != nil {
		return err
	}
	quiz, err := r.quizzes.GetQuiz(ctx, c.QuizID)
	if err != nil {
		if errors.Is(err, domain.ErrQuizNotFound) {
			return domain.Errorf(domain.CodeQuizNotFound, "quiz %s not found", c.QuizID)
		}
		return fmt.Errorf("load quiz %s: %w", c.QuizID, err)
	}

	settings := c.Settings.Apply(r.opts.Defaults)
	room, err := r.reserveRoom(ctx, conn, quiz, settings)
	if err != nil {
		return err
	}

	room.mu.Lock()
	defer room.mu.Unlock()
	r.bind(conn.ID(), identity{role: roleHost, pin: room.PIN()})
	conn.Send(Event{Type: EventGameCreated, Payload: GameCreated{
		GameID:   room.GameID(),
		PIN:      room.PIN(),
		HostKey:  room.hostKey,
		Quiz:     quiz.Summary(),
		Settings: settings,
	}})
	log.Printf("game %s created with pin %s for quiz %s", room.GameID(), room.PIN(), quiz.ID)
	return nil
}

// reserveRoom retries random PINs until the repository accepts one.
func (r *Registry) reserveRoom(ctx context.Context, conn Conn, quiz domain.Quiz, settings game.Settings) (*Room, error) {
	for attempt := 0; attempt < maxPINAttempts; attempt++ {
		pin, err := r.opts.NewPIN()
		if err != nil {
			return nil, err
		}
		session := game.NewSession(r.opts.NewID(), pin, quiz, conn.ID(), settings, game.WithClock(r.opts.Clock))
		room := NewRoom(session, r.opts.NewID(), conn)
		err = r.sessions.Reserve(ctx, pin, room)
		if err == nil {
			return room, nil
		}
		if !errors.Is(err, ErrPINTaken) {
			return nil, fmt.Errorf("reserve pin: %w", err)
		}
	}
	return nil, errors.New("no free pin after retries")
}

func (r *Registry) lookup(pin string) (*Room, error) {
	if !ValidPIN(pin) {
		return nil, domain.ErrInvalidPIN
	}
	room, ok := r.sessions.Get(pin)
	if !ok {
		return nil, domain.ErrGameNotFound
	}
	return room, nil
}

// withRoom runs fn with the room locked.
func (r *Registry) withRoom(pin string, fn func(room *Room) error) error {
	room, err := r.lookup(pin)
	if err != nil {
		return err
	}
	room.mu.Lock()
	defer room.mu.Unlock()
	if room.closed {
		return domain.ErrGameNotFound
	}
	return fn(room)
}

// withHost is withRoom restricted to the connection recorded as host.
func (r *Registry) withHost(conn Conn, pin string, fn func(room *Room) error) error {
	return r.withRoom(pin, func(room *Room) error {
		if room.host == nil || room.game.HostID() != conn.ID() {
			return domain.ErrUnauthorized
		}
		return fn(room)
	})
}

func (r *Registry) startGame(conn Conn, c StartGame) error {
	return r.withHost(conn, c.PIN, func(room *Room) error {
		switch room.game.Status() {
		case game.StatusLobby:
		case game.StatusEnded:
			return domain.ErrGameEnded
		default:
			return domain.ErrAlreadyStarted
		}
		if room.game.PlayerCount() == 0 {
			return domain.ErrNoPlayers
		}
		log.Printf("game %s started with %d players", room.GameID(), room.game.PlayerCount())
		r.startQuestionLocked(room)
		return nil
	})
}

func (r *Registry) nextQuestion(conn Conn, c NextQuestion) error {
	return r.withHost(conn, c.PIN, func(room *Room) error {
		switch room.game.Status() {
		case game.StatusLobby:
			return domain.ErrNotStarted
		case game.StatusEnded:
			return domain.ErrGameEnded
		case game.StatusQuestion:
			r.endQuestionLocked(room)
		default:
			r.startQuestionLocked(room)
		}
		return nil
	})
}

func (r *Registry) endGame(conn Conn, c EndGame) error {
	return r.withHost(conn, c.PIN, func(room *Room) error {
		r.finishLocked(room)
		r.closeLocked(room)
		log.Printf("game %s closed by host", room.GameID())
		return nil
	})
}

func (r *Registry) startQuestionLocked(room *Room) {
	q, err := room.game.StartQuestion()
	if errors.Is(err, game.ErrNoMoreQuestions) {
		r.finishLocked(room)
		return
	}
	if err != nil {
		log.Printf("game %s: start question: %v", room.GameID(), err)
		return
	}

	number, total := room.game.CurrentQuestionIndex()+1, room.game.QuestionCount()
	room.toHost(Event{Type: EventQuestionStart, Payload: questionStart(q, number, total, true)})
	room.toPlayers(Event{Type: EventQuestionStart, Payload: questionStart(q, number, total, false)})

	key := TaskKey{SessionID: room.GameID(), QuestionID: q.ID, Kind: TaskQuestionTimeout}
	r.opts.Scheduler.Schedule(key, time.Duration(q.TimeLimitSec)*time.Second, func() {
		r.questionTimeout(room, q.ID)
	})
}

// questionTimeout closes the question only if it is still the open one.
func (r *Registry) questionTimeout(room *Room, questionID string) {
	defer recoverTask("question timeout")
	room.mu.Lock()
	defer room.mu.Unlock()
	if room.closed || room.game.Status() != game.StatusQuestion {
		return
	}
	if q, ok := room.game.CurrentQuestion(); !ok || q.ID != questionID {
		return
	}
	r.endQuestionLocked(room)
}

// endQuestionLocked reveals results, then shows the leaderboard. After the
// last question the game ends on its own once the final leaderboard has
// been shown.
func (r *Registry) endQuestionLocked(room *Room) {
	results, ok := room.game.EndQuestion()
	if !ok {
		return
	}
	room.toAll(Event{Type: EventQuestionResults, Payload: results})

	room.game.ShowLeaderboard()
	leaderboard := room.game.Leaderboard()
	final := room.game.IsGameOver()
	room.toHost(Event{Type: EventLeaderboardUpdate, Payload: LeaderboardUpdate{
		QuestionNumber: results.QuestionNumber,
		TotalQuestions: room.game.QuestionCount(),
		IsFinal:        final,
		Leaderboard:    leaderboard,
	}})
	for _, entry := range leaderboard {
		room.toPlayer(entry.PlayerID, Event{Type: EventLeaderboardYou, Payload: PlayerStanding{
			Rank:         entry.Rank,
			Score:        entry.Score,
			Nickname:     entry.Nickname,
			Streak:       entry.Streak,
			PreviousRank: entry.PreviousRank,
			Movement:     entry.Movement,
			TotalPlayers: len(leaderboard),
		}})
	}

	if final {
		key := TaskKey{SessionID: room.GameID(), QuestionID: results.QuestionID, Kind: TaskFinalLeaderboard}
		r.opts.Scheduler.Schedule(key, r.opts.FinalLeaderboardDelay, func() {
			r.finalLeaderboardShown(room)
		})
	}
}

func (r *Registry) finalLeaderboardShown(room *Room) {
	defer recoverTask("final leaderboard")
	room.mu.Lock()
	defer room.mu.Unlock()
	if room.closed || room.finished {
		return
	}
	r.finishLocked(room)
}

// finishLocked moves the game to ended and broadcasts game:ended once.
func (r *Registry) finishLocked(room *Room) {
	if room.finished {
		return
	}
	room.finished = true
	room.game.End()
	room.toAll(Event{Type: EventGameEnded, Payload: GameEnded{Leaderboard: room.game.Leaderboard()}})
	log.Printf("game %s ended", room.GameID())
}

// closeLocked removes the room from the registry and forgets its connections.
func (r *Registry) closeLocked(room *Room) {
	if room.closed {
		return
	}
	room.closed = true
	r.sessions.Delete(context.Background(), room.PIN())

	r.mu.Lock()
	for connID, id := range r.conns {
		if id.pin == room.PIN() {
			delete(r.conns, connID)
		}
	}
	r.mu.Unlock()
}

func (r *Registry) joinGame(conn Conn, c JoinGame) error {
	if err := r.checkFree(conn, identity{}); err != nil {
		return err
	}
	room, err := r.lookup(c.PIN)
	if err != nil {
		return err
	}
	nickname, err := r.opts.Policy.Admit(c.Nickname)
	if err != nil {
		return err
	}

	room.mu.Lock()
	defer room.mu.Unlock()
	if room.closed {
		return domain.ErrGameNotFound
	}

	player := game.NewPlayer(r.opts.NewID(), nickname, conn.ID(), r.opts.Clock())
	player.Avatar = r.opts.Policy.Avatar(nickname)
	if err := room.game.AddPlayer(player); err != nil {
		return err
	}
	room.players[player.ID] = conn
	r.bind(conn.ID(), identity{role: rolePlayer, pin: room.PIN(), playerID: player.ID})

	conn.Send(Event{Type: EventGameJoined, Payload: GameJoined{
		PlayerID: player.ID,
		Nickname: player.Nickname,
		GameID:   room.GameID(),
		PIN:      room.PIN(),
		Avatar:   player.Avatar,
	}})
	room.toHost(Event{Type: EventLobbyUpdate, Payload: LobbyUpdate{
		PlayerCount: room.game.PlayerCount(),
		Players:     publicPlayers(room.game),
	}})
	r.sendOpenQuestion(room, conn, false)
	log.Printf("player %s joined game %s", player.Nickname, room.GameID())
	return nil
}

// sendOpenQuestion repeats question:start to a late or returning client.
func (r *Registry) sendOpenQuestion(room *Room, conn Conn, withAnswer bool) {
	if room.game.Status() != game.StatusQuestion {
		return
	}
	q, ok := room.game.CurrentQuestion()
	if !ok {
		return
	}
	number := room.game.CurrentQuestionIndex() + 1
	conn.Send(Event{Type: EventQuestionStart, Payload: questionStart(q, number, room.game.QuestionCount(), withAnswer)})
}

func (r *Registry) submitAnswer(conn Conn, c SubmitAnswer) error {
	id, ok := r.identity(conn.ID())
	if !ok || id.role != rolePlayer {
		return domain.ErrPlayerNotFound
	}
	room, ok := r.sessions.Get(id.pin)
	if !ok {
		return domain.ErrGameNotFound
	}

	room.mu.Lock()
	defer room.mu.Unlock()
	if room.closed {
		return domain.ErrGameNotFound
	}

	receipt, err := room.game.SubmitAnswer(id.playerID, c.QuestionID, c.Answer)
	if err != nil {
		reason, ok := rejectionReason(err)
		if !ok {
			return err
		}
		conn.Send(Event{Type: EventAnswerRejected, Payload: AnswerRejected{QuestionID: c.QuestionID, Reason: reason}})
		return nil
	}

	conn.Send(Event{Type: EventAnswerAccepted, Payload: AnswerAccepted{
		QuestionID:  receipt.QuestionID,
		IsCorrect:   receipt.Correct,
		Provisional: true,
		Replaced:    receipt.Replaced,
	}})
	room.toHost(Event{Type: EventAnswerCount, Payload: AnswerCount{
		QuestionID: receipt.QuestionID,
		Answered:   room.game.AnswerCount(receipt.QuestionID),
		Total:      room.game.PlayerCount(),
	}})
	return nil
}

func rejectionReason(err error) (string, bool) {
	switch {
	case errors.Is(err, game.ErrPlayerUnavailable):
		return ReasonPlayerUnavailable, true
	case errors.Is(err, game.ErrStaleQuestion):
		return ReasonStaleQuestion, true
	case errors.Is(err, game.ErrQuestionClosed):
		return ReasonQuestionClosed, true
	case errors.Is(err, game.ErrDuplicateAnswer):
		return ReasonDuplicateAnswer, true
	default:
		return "", false
	}
}

func (r *Registry) rejoin(conn Conn, c Rejoin) error {
	if err := r.checkFree(conn, identity{role: rolePlayer, pin: c.PIN, playerID: c.PlayerID}); err != nil {
		return err
	}
	return r.withRoom(c.PIN, func(room *Room) error {
		player, ok := room.game.Player(c.PlayerID)
		if !ok {
			return domain.ErrPlayerNotFound
		}
		if prev, ok := room.players[player.ID]; ok && prev.ID() != conn.ID() {
			r.unbind(prev.ID())
		}
		player.Reconnect(conn.ID())
		room.players[player.ID] = conn
		r.bind(conn.ID(), identity{role: rolePlayer, pin: room.PIN(), playerID: player.ID})

		conn.Send(Event{Type: EventGameRejoined, Payload: GameRejoined{
			PlayerID:             player.ID,
			Nickname:             player.Nickname,
			Avatar:               player.Avatar,
			Score:                player.Score,
			GameStatus:           room.game.Status(),
			CurrentQuestionIndex: room.game.CurrentQuestionIndex(),
		}})
		room.toHost(Event{Type: EventPlayerBack, Payload: PlayerPresence{PlayerID: player.ID, Nickname: player.Nickname}})
		r.sendOpenQuestion(room, conn, false)
		log.Printf("player %s rejoined game %s", player.Nickname, room.GameID())
		return nil
	})
}

func (r *Registry) hostReconnect(conn Conn, c HostReconnect) error {
	if err := r.checkFree(conn, identity{role: roleHost, pin: c.PIN}); err != nil {
		return err
	}
	return r.withRoom(c.PIN, func(room *Room) error {
		if c.HostKey == "" || c.HostKey != room.hostKey {
			return domain.ErrUnauthorized
		}
		if room.host != nil && room.host.ID() != conn.ID() {
			r.unbind(room.host.ID())
		}
		room.host = conn
		room.hostGen++
		room.game.SetHost(conn.ID())
		r.bind(conn.ID(), identity{role: roleHost, pin: room.PIN()})

		conn.Send(Event{Type: EventHostRejoined, Payload: HostRejoined{
			GameID:               room.GameID(),
			PIN:                  room.PIN(),
			Quiz:                 room.game.Quiz().Summary(),
			GameStatus:           room.game.Status(),
			CurrentQuestionIndex: room.game.CurrentQuestionIndex(),
			Players:              publicPlayers(room.game),
			Leaderboard:          room.game.Leaderboard(),
		}})
		room.toPlayers(Event{Type: EventHostBack, Payload: struct{}{}})
		r.sendOpenQuestion(room, conn, true)
		log.Printf("host rejoined game %s", room.GameID())
		return nil
	})
}

// Disconnect forgets conn. A host leaving starts the grace period; a player
// leaving is marked disconnected and keeps its score.
func (r *Registry) Disconnect(conn Conn) {
	id, ok := r.unbind(conn.ID())
	if !ok {
		return
	}
	room, ok := r.sessions.Get(id.pin)
	if !ok {
		return
	}

	room.mu.Lock()
	defer room.mu.Unlock()
	if room.closed {
		return
	}

	switch id.role {
	case roleHost:
		if room.host == nil || room.host.ID() != conn.ID() {
			return
		}
		room.host = nil
		room.hostGen++
		room.toPlayers(Event{Type: EventHostLeft, Payload: struct{}{}})
		if room.finished {
			return
		}
		gen := room.hostGen
		key := TaskKey{SessionID: room.GameID(), Kind: TaskHostGrace}
		r.opts.Scheduler.Schedule(key, r.opts.HostGrace, func() {
			r.hostGraceExpired(room, gen)
		})
		log.Printf("host of game %s disconnected", room.GameID())
	case rolePlayer:
		player, ok := room.game.Player(id.playerID)
		if !ok || player.ConnID != conn.ID() {
			return
		}
		player.Disconnect()
		delete(room.players, player.ID)
		room.toHost(Event{Type: EventPlayerLeft, Payload: PlayerPresence{PlayerID: player.ID, Nickname: player.Nickname}})
		log.Printf("player %s left game %s", player.Nickname, room.GameID())
	}
}

func (r *Registry) hostGraceExpired(room *Room, gen int) {
	defer recoverTask("host grace")
	room.mu.Lock()
	defer room.mu.Unlock()
	if room.closed || room.host != nil || room.hostGen != gen {
		return
	}
	log.Printf("host of game %s did not return", room.GameID())
	r.finishLocked(room)
	r.closeLocked(room)
}

func recoverTask(name string) {
	if rec := recover(); rec != nil {
		log.Printf("recovered panic in %s: %v", name, rec)
	}
}

// checkFree rejects a connection that is still part of another running game.
// A connection holds one identity at a time so Disconnect can release it; a
// binding to a finished game may be replaced. Must not be called with a room
// lock held.
func (r *Registry) checkFree(conn Conn, same identity) error {
	id, ok := r.identity(conn.ID())
	if !ok || id == same {
		return nil
	}
	room, ok := r.sessions.Get(id.pin)
	if !ok {
		return nil
	}
	room.mu.Lock()
	done := room.finished || room.closed
	room.mu.Unlock()
	if done {
		return nil
	}
	return domain.ErrAlreadyJoined
}

func (r *Registry) bind(connID string, id identity) {
	r.mu.Lock()
	r.conns[connID] = id
	r.mu.Unlock()
}

func (r *Registry) unbind(connID string) (identity, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.conns[connID]
	delete(r.conns, connID)
	return id, ok
}

func (r *Registry) identity(connID string) (identity, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.conns[connID]
	return id, ok
}
