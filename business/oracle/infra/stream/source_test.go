package stream

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/shopspring/decimal"

	"github.com/fd1az/stablecoin-engine/internal/apperror"
	"github.com/fd1az/stablecoin-engine/internal/logger"
)

type mockLogger struct{}

func (m *mockLogger) Debug(ctx context.Context, msg string, args ...any)              {}
func (m *mockLogger) Info(ctx context.Context, msg string, args ...any)               {}
func (m *mockLogger) Warn(ctx context.Context, msg string, args ...any)               {}
func (m *mockLogger) Error(ctx context.Context, msg string, args ...any)              {}
func (m *mockLogger) Debugc(ctx context.Context, caller int, msg string, args ...any) {}
func (m *mockLogger) Infoc(ctx context.Context, caller int, msg string, args ...any)  {}
func (m *mockLogger) Warnc(ctx context.Context, caller int, msg string, args ...any)  {}
func (m *mockLogger) Errorc(ctx context.Context, caller int, msg string, args ...any) {}

var _ logger.LoggerInterface = (*mockLogger)(nil)

func TestBuildStreamURL(t *testing.T) {
	got, err := buildStreamURL("wss://stream.example.com:9443", map[string]string{
		"ETH/USD": "ETHUSDT",
		"BTC/USD": "BTCUSDT",
	})
	if err != nil {
		t.Fatal(err)
	}
	want := "wss://stream.example.com:9443/stream?streams=btcusdt@bookTicker/ethusdt@bookTicker"
	if got != want {
		t.Errorf("url = %s\nwant  %s", got, want)
	}
}

func TestBookTickerEvent_Mid(t *testing.T) {
	tests := []struct {
		name string
		bid  string
		ask  string
		want string
	}{
		{name: "two_sided", bid: "3400.00", ask: "3401.00", want: "3400.5"},
		{name: "no_bids", bid: "0", ask: "3401.00", want: "3401"},
		{name: "no_asks", bid: "3400.00", ask: "0", want: "3400"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := BookTickerEvent{BidPrice: tt.bid, AskPrice: tt.ask}
			got, err := e.Mid()
			if err != nil {
				t.Fatal(err)
			}
			if !got.Equal(decimal.RequireFromString(tt.want)) {
				t.Errorf("mid = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestSource_StreamsQuotes(t *testing.T) {
	sent := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("streams"); got != "ethusdt@bookTicker" {
			t.Errorf("streams = %q", got)
		}
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "")

		ctx := context.Background()
		conn.Write(ctx, websocket.MessageText, []byte(`{"result":null,"id":1}`))
		conn.Write(ctx, websocket.MessageText, []byte(`{"stream":"ethusdt@bookTicker","data":{"u":1,"s":"ETHUSDT","b":"garbage","B":"1","a":"3401.00","A":"1"}}`))
		conn.Write(ctx, websocket.MessageText, []byte(`{"stream":"ethusdt@bookTicker","data":{"u":2,"s":"ETHUSDT","b":"3400.00","B":"1","a":"3401.00","A":"1"}}`))
		close(sent)
		time.Sleep(500 * time.Millisecond)
	}))
	defer server.Close()

	src, err := New(Config{
		ID:       "stream",
		Priority: 1,
		BaseURL:  "ws" + strings.TrimPrefix(server.URL, "http"),
		Symbols:  map[string]string{"eth/usd": "ethusdt"},
	}, &mockLogger{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer src.Close()

	if _, err := src.Quote(context.Background(), "ETH", "USD"); apperror.GetCode(err) != apperror.CodeSourceUnavailable {
		t.Fatalf("before connect: err = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := src.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	<-sent

	deadline := time.Now().Add(2 * time.Second)
	for {
		q, err := src.Quote(context.Background(), "ETH", "USD")
		if err == nil {
			if !q.Price.Equal(decimal.RequireFromString("3400.5")) {
				t.Errorf("price = %s, want 3400.5", q.Price)
			}
			if q.SourceID != "stream" || q.ObservedAt.IsZero() {
				t.Errorf("quote = %+v", q)
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("no quote after stream: %v", err)
		}
		time.Sleep(10 * time.Millisecond)
	}
}
