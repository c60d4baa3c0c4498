package identity

// Wallet is the connected identity collaborator. The handshake itself
// happens outside the progression engine.
type Wallet interface {
	IsConnected() bool
	WalletID() string
}

// Static is a wallet whose connection state is fixed by the caller.
type Static struct {
	ID        string
	Connected bool
}

// Connected returns a connected wallet for id; an empty id is disconnected.
func Connected(id string) Static {
	return Static{ID: id, Connected: id != ""}
}

// Disconnected returns a wallet with no connection.
func Disconnected() Static {
	return Static{}
}

func (w Static) IsConnected() bool {
	return w.Connected && w.ID != ""
}

func (w Static) WalletID() string {
	return w.ID
}
