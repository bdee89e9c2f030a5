package callback

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zenghr0820/gvoip/sip"
)

func TestNewCallbackSeedsHandlers(t *testing.T) {
	c := NewCallback(
		Name("uac"),
		RequestHandle(sip.INVITE, func(req sip.Request, tx sip.ServerTransaction) {}),
		ResponseHandle(func(res sip.Response, tx sip.ClientTransaction) {}),
	)

	_, ok := c.GetRequestHandle(sip.INVITE)
	assert.True(t, ok)
	_, ok = c.GetResponseHandle()
	assert.True(t, ok)

	assert.Equal(t, []sip.RequestMethod{sip.INVITE}, c.GetAllowedMethods())
	assert.Equal(t, "uac", c.Options().Name)
	assert.Equal(t, "uac", c.String())
}

func TestCallbackInitMergesOptions(t *testing.T) {
	c := NewCallback()

	_, ok := c.GetRequestHandle(sip.BYE)
	require.False(t, ok)

	c.Init(RequestHandle(sip.BYE, func(req sip.Request, tx sip.ServerTransaction) {}))

	_, ok = c.GetRequestHandle(sip.BYE)
	assert.True(t, ok)
}

func TestDoRequestDispatchesToHandler(t *testing.T) {
	invoked := make(chan sip.RequestMethod, 1)

	c := NewCallback(RequestHandle(sip.OPTIONS, func(req sip.Request, tx sip.ServerTransaction) {
		invoked <- req.Method()
	}))

	req := sip.CreateSimpleRequest(sip.OPTIONS, "127.0.0.1:5060")
	require.NoError(t, c.DoRequest(req, nil))

	select {
	case method := <-invoked:
		assert.Equal(t, sip.OPTIONS, method)
	case <-time.After(time.Second):
		t.Fatal("request handler not invoked")
	}
}

func TestDoRequestWithoutHandler(t *testing.T) {
	c := NewCallback()

	req := sip.CreateSimpleRequest(sip.OPTIONS, "127.0.0.1:5060")
	err := c.DoRequest(req, nil)

	var notExit *NotExitCallbackError
	assert.True(t, errors.As(err, &notExit))
}
