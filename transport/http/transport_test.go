package http

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentrelay/core"
)

func newServed(t *testing.T, address string, codec Codec) (*Transport, *httptest.Server) {
	t.Helper()
	tr, err := New(func(o *Options) {
		o.Address = address
		o.Codec = codec
	})
	require.NoError(t, err)
	srv := httptest.NewServer(tr.Handler())
	t.Cleanup(srv.Close)
	return tr, srv
}

func TestTransport_DeliversBetweenPeers(t *testing.T) {
	for _, codec := range []Codec{JSONCodec{}, CBORCodec{}} {
		t.Run(codec.Name(), func(t *testing.T) {
			alice, aliceSrv := newServed(t, "alice@x", codec)
			bot, botSrv := newServed(t, "bot@x", codec)
			alice.AddPeer("bot@x", botSrv.URL)
			bot.AddPeer("alice@x", aliceSrv.URL+"/")

			out := core.NewMessage("", "bot@x", "t1", "hello").WithMetadata("k", "v")
			require.NoError(t, alice.Send(context.Background(), out))

			got, err := bot.Receive(context.Background(), time.Second)
			require.NoError(t, err)
			require.NotNil(t, got)
			assert.Equal(t, out.ID, got.ID)
			assert.Equal(t, "alice@x", got.Sender)
			assert.Equal(t, "t1", got.Thread)
			assert.Equal(t, "hello", got.Body)
			assert.Equal(t, "v", got.Metadata["k"])

			require.NoError(t, bot.Send(context.Background(), core.NewMessage("bot@x", "alice@x", "t1", "hi back")))
			reply, err := alice.Receive(context.Background(), time.Second)
			require.NoError(t, err)
			require.NotNil(t, reply)
			assert.Equal(t, "hi back", reply.Body)
		})
	}
}

func TestTransport_UnknownPeer(t *testing.T) {
	tr, err := New(func(o *Options) { o.Address = "a@x" })
	require.NoError(t, err)
	require.ErrorIs(t, tr.Send(context.Background(), core.Message{To: "nobody@x"}), ErrUnknownPeer)
}

func TestTransport_RejectsInvalidRequests(t *testing.T) {
	_, srv := newServed(t, "bot@x", JSONCodec{})

	resp, err := http.Post(srv.URL+MessagesPath, ContentTypeJSON, bytes.NewBufferString("{not json"))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, err = http.Post(srv.URL+MessagesPath, ContentTypeJSON, bytes.NewBufferString(`{"to":"bot@x","body":"x"}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, err = http.Post(srv.URL+MessagesPath, ContentTypeJSON, bytes.NewBufferString(`{"sender":"a@x","to":"other@x","body":"x"}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestTransport_InboxFull(t *testing.T) {
	tr, err := New(func(o *Options) {
		o.Address = "bot@x"
		o.InboxSize = 1
	})
	require.NoError(t, err)
	srv := httptest.NewServer(tr.Handler())
	defer srv.Close()

	sender, err := New(func(o *Options) {
		o.Address = "a@x"
		o.Peers = map[string]string{"bot@x": srv.URL}
	})
	require.NoError(t, err)

	require.NoError(t, sender.Send(context.Background(), core.NewMessage("a@x", "bot@x", "", "1")))
	err = sender.Send(context.Background(), core.NewMessage("a@x", "bot@x", "", "2"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}

func TestTransport_Health(t *testing.T) {
	_, srv := newServed(t, "bot@x", JSONCodec{})
	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestTransport_ReceiveTimeout(t *testing.T) {
	tr, err := New(func(o *Options) { o.Address = "a@x" })
	require.NoError(t, err)
	got, err := tr.Receive(context.Background(), 10*time.Millisecond)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestCodecByName(t *testing.T) {
	c, err := CodecByName("cbor")
	require.NoError(t, err)
	assert.Equal(t, ContentTypeCBOR, c.ContentType())

	c, err = CodecByName("")
	require.NoError(t, err)
	assert.Equal(t, "json", c.Name())

	_, err = CodecByName("xml")
	require.Error(t, err)
}

func TestCBORCodec_Deterministic(t *testing.T) {
	m := core.Message{ID: "1", Sender: "a", To: "b", Body: "x", Metadata: map[string]string{"z": "1", "a": "2"}}
	first, err := CBORCodec{}.Marshal(m)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := CBORCodec{}.Marshal(m)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}
