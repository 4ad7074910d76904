package kquic

import (
	"context"
	"testing"
	"time"

	"github.com/kerrnet/kerr/internal/identity"
	"github.com/kerrnet/kerr/internal/token"
)

func mustIdentity(t *testing.T) identity.Identity {
	t.Helper()
	id, err := identity.Ephemeral()
	if err != nil {
		t.Fatalf("identity.Ephemeral: %v", err)
	}
	return id
}

func TestDialAcceptConfirmsIdentity(t *testing.T) {
	serverID := mustIdentity(t)
	clientID := mustIdentity(t)

	ep, err := Listen("127.0.0.1:0", serverID)
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer ep.Close()

	acceptErr := make(chan error, 1)
	acceptConn := make(chan *Connection, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		conn, err := ep.Accept(ctx)
		acceptErr <- err
		acceptConn <- conn
	}()

	tok := token.Token{NodeID: serverID.NodeID(), DirectAddresses: []string{ep.Addr()}}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	clientConn, err := Dial(ctx, clientID, tok)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer clientConn.Close()

	if err := <-acceptErr; err != nil {
		t.Fatalf("Accept: %v", err)
	}
	serverConn := <-acceptConn
	defer serverConn.Close()

	if clientConn.PeerNodeID != serverID.NodeID() {
		t.Fatalf("client saw peer %s, want %s", clientConn.PeerNodeID, serverID.NodeID())
	}
	if serverConn.PeerNodeID != clientID.NodeID() {
		t.Fatalf("server saw peer %s, want %s", serverConn.PeerNodeID, clientID.NodeID())
	}
	if clientConn.ConfirmedKey != serverConn.ConfirmedKey {
		t.Fatalf("client and server derived different confirmation keys")
	}
}

func TestDialRejectsWrongNodeID(t *testing.T) {
	serverID := mustIdentity(t)
	clientID := mustIdentity(t)
	wrongID := mustIdentity(t)

	ep, err := Listen("127.0.0.1:0", serverID)
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer ep.Close()

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		conn, err := ep.Accept(ctx)
		if err == nil {
			conn.Close()
		}
	}()

	tok := token.Token{NodeID: wrongID.NodeID(), DirectAddresses: []string{ep.Addr()}}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := Dial(ctx, clientID, tok); err == nil {
		t.Fatalf("expected Dial to reject mismatched node_id")
	}
}

func TestDialUnreachableWithNoAddresses(t *testing.T) {
	clientID := mustIdentity(t)
	tok := token.Token{NodeID: mustIdentity(t).NodeID()}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if _, err := Dial(ctx, clientID, tok); err == nil {
		t.Fatalf("expected Dial to fail with no addresses")
	}
}
