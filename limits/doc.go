// Package limits provides centralized size limits enforced at the node's
// three ingress boundaries: the plaintext message payload, the peer
// transport's length-framed wire protocol, and the local control plane's
// request bodies.
//
//	err := limits.ValidateMessageText([]byte(text))
//	if err != nil {
//	    // TooLarge: text exceeds MaxMessageText
//	}
//
// ValidateMessageSize is the generic form used where a caller needs a
// one-off limit not covered by the three named boundaries.
package limits
