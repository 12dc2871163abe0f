package signal

// Policy decides whether a failed action also ends the connection.
type Policy struct {
	// DisconnectOnViolation closes the connection after a role check or
	// state precondition fails (unauthenticated chat, viewer sending a
	// system message, leaving a room it is not in). Otherwise the action
	// is refused with an error and the connection stays open.
	DisconnectOnViolation bool
	// CloseOnAuthFailure closes the connection after a rejected
	// credential. Otherwise the client may send authenticate again.
	CloseOnAuthFailure bool
}
