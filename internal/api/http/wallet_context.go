package httpapi

import (
	"context"
	"net/http"
	"strings"

	"github.com/josegomez-dev/stellar-nexus-experience-sub000/internal/domain/identity"
)

// WalletHeader carries the connected wallet address. The wallet handshake
// happens in the client; the server only sees its result.
const WalletHeader = "X-Wallet-ID"

type walletContextKey string

const walletKey walletContextKey = "wallet"

func withWallet(ctx context.Context, w identity.Wallet) context.Context {
	return context.WithValue(ctx, walletKey, w)
}

// walletFromContext returns the request wallet, disconnected when absent.
func walletFromContext(ctx context.Context) identity.Wallet {
	if w, ok := ctx.Value(walletKey).(identity.Wallet); ok {
		return w
	}
	return identity.Disconnected()
}

// identifyWallet attaches the caller's wallet to the request context.
// Requests without one continue with a disconnected wallet.
func (s *Server) identifyWallet(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := extractWallet(r)
		next.ServeHTTP(w, r.WithContext(withWallet(r.Context(), identity.Connected(id))))
	})
}

// requireWallet rejects requests without a connected wallet.
func (s *Server) requireWallet(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !walletFromContext(r.Context()).IsConnected() {
			respondError(w, http.StatusUnauthorized, "WALLET_REQUIRED", "connect a wallet first")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// extractWallet reads the wallet from the header, falling back to the
// wallet_id query parameter for EventSource clients that cannot set headers.
func extractWallet(r *http.Request) string {
	if v := strings.TrimSpace(r.Header.Get(WalletHeader)); v != "" {
		return v
	}
	return strings.TrimSpace(r.URL.Query().Get("wallet_id"))
}
