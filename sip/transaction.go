package sip

// 事务层接口定义, 由 transaction 包实现
type Transaction interface {
	Origin() Request
	String() string
	Errors() <-chan error
	Done() <-chan bool
}

type ServerTransaction interface {
	Transaction
	SendResponse(res Response) error
	AckRequest() <-chan Request
	CancelRequest() <-chan Request
}

type ClientTransaction interface {
	Transaction
	Responses() <-chan Response
	Cancel() error
}
