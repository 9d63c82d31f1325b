package pgconn

import (
	"crypto/hmac"
	"crypto/md5"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/pbkdf2"

	"github.com/flowpg/flowpg/pgproto"
)

const scramMechanism = "SCRAM-SHA-256"

// computeMD5Password implements AuthenticationMD5Password: the server-chosen
// salt and the client's password are combined as
// "md5" + hex(md5(hex(md5(password+user)) + salt)).
func computeMD5Password(user, password string, salt [4]byte) string {
	h1 := md5.Sum([]byte(password + user))
	h2 := md5.Sum([]byte(hex.EncodeToString(h1[:]) + string(salt[:])))
	return "md5" + hex.EncodeToString(h2[:])
}

// scramSHA256 drives the full SCRAM-SHA-256 exchange (RFC 5802, no channel
// binding) against fe, given the mechanism list from AuthenticationSASL.
func scramSHA256(fe *pgproto.Frontend, user, password string, mechanisms []string) error {
	if !containsMechanism(mechanisms, scramMechanism) {
		return &AuthenticationError{Detail: fmt.Sprintf("server does not support %s, offered: %v", scramMechanism, mechanisms)}
	}

	nonceBytes := make([]byte, 18)
	if _, err := rand.Read(nonceBytes); err != nil {
		return &ConnectionError{Op: "generating SCRAM nonce", Err: err}
	}
	clientNonce := base64.StdEncoding.EncodeToString(nonceBytes)

	gs2Header := "n,,"
	clientFirstBare := fmt.Sprintf("n=%s,r=%s", scramEscapeUsername(user), clientNonce)
	clientFirstMsg := gs2Header + clientFirstBare

	if err := fe.SendNow(&pgproto.SASLInitialResponse{Mechanism: scramMechanism, Data: []byte(clientFirstMsg)}); err != nil {
		return &ConnectionError{Op: "sending SASL initial response", Err: err}
	}

	serverFirstMsg, err := readSASLContinue(fe)
	if err != nil {
		return err
	}

	serverNonce, salt, iterations, err := parseServerFirst(string(serverFirstMsg))
	if err != nil {
		return &AuthenticationError{Detail: err.Error()}
	}
	if !strings.HasPrefix(serverNonce, clientNonce) {
		return &AuthenticationError{Detail: "server nonce does not start with client nonce"}
	}

	saltedPassword := pbkdf2.Key([]byte(password), salt, iterations, 32, sha256.New)
	clientKey := hmacSHA256(saltedPassword, []byte("Client Key"))
	storedKey := sha256Sum(clientKey)

	channelBinding := "c=" + base64.StdEncoding.EncodeToString([]byte(gs2Header))
	clientFinalWithoutProof := fmt.Sprintf("%s,r=%s", channelBinding, serverNonce)
	authMessage := clientFirstBare + "," + string(serverFirstMsg) + "," + clientFinalWithoutProof

	clientSignature := hmacSHA256(storedKey, []byte(authMessage))
	clientProof := xorBytes(clientKey, clientSignature)
	clientFinalMsg := clientFinalWithoutProof + ",p=" + base64.StdEncoding.EncodeToString(clientProof)

	if err := fe.SendNow(&pgproto.SASLResponse{Data: []byte(clientFinalMsg)}); err != nil {
		return &ConnectionError{Op: "sending SASL response", Err: err}
	}

	serverFinalMsg, err := readSASLFinal(fe)
	if err != nil {
		return err
	}

	serverKey := hmacSHA256(saltedPassword, []byte("Server Key"))
	expectedSig := hmacSHA256(serverKey, []byte(authMessage))
	expectedFinal := "v=" + base64.StdEncoding.EncodeToString(expectedSig)
	if string(serverFinalMsg) != expectedFinal {
		return &AuthenticationError{Detail: "server signature mismatch"}
	}
	return nil
}

func readSASLContinue(fe *pgproto.Frontend) ([]byte, error) {
	msg, err := fe.Receive()
	if err != nil {
		return nil, &ConnectionError{Op: "reading SASL continuation", Err: err}
	}
	switch m := msg.(type) {
	case *pgproto.Authentication:
		if m.SASLContinue == nil {
			return nil, &ProtocolError{Detail: fmt.Sprintf("expected AuthenticationSASLContinue, got auth type %d", m.Type)}
		}
		return m.SASLContinue.Data, nil
	case *pgproto.ErrorResponse:
		return nil, newPostgresError(m)
	default:
		return nil, &ProtocolError{Detail: fmt.Sprintf("expected Authentication message, got %T", msg)}
	}
}

func readSASLFinal(fe *pgproto.Frontend) ([]byte, error) {
	msg, err := fe.Receive()
	if err != nil {
		return nil, &ConnectionError{Op: "reading SASL final", Err: err}
	}
	switch m := msg.(type) {
	case *pgproto.Authentication:
		if m.SASLFinal == nil {
			return nil, &ProtocolError{Detail: fmt.Sprintf("expected AuthenticationSASLFinal, got auth type %d", m.Type)}
		}
		return m.SASLFinal.Data, nil
	case *pgproto.ErrorResponse:
		return nil, newPostgresError(m)
	default:
		return nil, &ProtocolError{Detail: fmt.Sprintf("expected Authentication message, got %T", msg)}
	}
}

func containsMechanism(mechs []string, target string) bool {
	for _, m := range mechs {
		if m == target {
			return true
		}
	}
	return false
}

func parseServerFirst(msg string) (nonce string, salt []byte, iterations int, err error) {
	for _, part := range strings.Split(msg, ",") {
		switch {
		case strings.HasPrefix(part, "r="):
			nonce = part[2:]
		case strings.HasPrefix(part, "s="):
			salt, err = base64.StdEncoding.DecodeString(part[2:])
			if err != nil {
				return "", nil, 0, fmt.Errorf("decoding salt: %w", err)
			}
		case strings.HasPrefix(part, "i="):
			iterations, err = strconv.Atoi(part[2:])
			if err != nil {
				return "", nil, 0, fmt.Errorf("parsing iteration count: %w", err)
			}
		}
	}
	if nonce == "" || salt == nil || iterations == 0 {
		return "", nil, 0, fmt.Errorf("incomplete server-first-message: %q", msg)
	}
	return nonce, salt, iterations, nil
}

func scramEscapeUsername(user string) string {
	user = strings.ReplaceAll(user, "=", "=3D")
	user = strings.ReplaceAll(user, ",", "=2C")
	return user
}

func hmacSHA256(key, data []byte) []byte {
	h := hmac.New(sha256.New, key)
	h.Write(data)
	return h.Sum(nil)
}

func sha256Sum(data []byte) []byte {
	sum := sha256.Sum256(data)
	return sum[:]
}

func xorBytes(a, b []byte) []byte {
	out := make([]byte, len(a))
	for i := range a {
		out[i] = a[i] ^ b[i]
	}
	return out
}
