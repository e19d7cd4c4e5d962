// Package pcsc adapts github.com/ebfe/scard into a gp.Transport.
package pcsc

import (
	"fmt"
	"log/slog"

	"github.com/ebfe/scard"
)

// Reader represents a connected smart card and implements gp.Transport.
type Reader struct {
	ctx  *scard.Context
	card *scard.Card
	name string
	atr  []byte
}

// ListReaders returns the names of all PC/SC readers currently visible to
// the system, regardless of whether a card is present.
func ListReaders() ([]string, error) {
	ctx, err := scard.EstablishContext()
	if err != nil {
		return nil, fmt.Errorf("establish PC/SC context: %w", err)
	}
	defer ctx.Release()

	readers, err := ctx.ListReaders()
	if err != nil {
		return nil, fmt.Errorf("list readers: %w", err)
	}
	return readers, nil
}

// Connect opens a shared connection to the card in the reader at readerName.
// An empty readerName connects to the first reader PC/SC lists; whether that
// reader holds a card is not checked before connecting.
func Connect(readerName string) (*Reader, error) {
	ctx, err := scard.EstablishContext()
	if err != nil {
		return nil, fmt.Errorf("establish PC/SC context: %w", err)
	}

	readers, err := ctx.ListReaders()
	if err != nil {
		ctx.Release()
		return nil, fmt.Errorf("list readers: %w", err)
	}
	if len(readers) == 0 {
		ctx.Release()
		return nil, fmt.Errorf("no smart card readers found")
	}

	target := readerName
	if target == "" {
		target = readers[0]
	} else {
		found := false
		for _, r := range readers {
			if r == target {
				found = true
				break
			}
		}
		if !found {
			ctx.Release()
			return nil, fmt.Errorf("reader %q not found among %v", target, readers)
		}
	}

	card, err := ctx.Connect(target, scard.ShareShared, scard.ProtocolAny)
	if err != nil {
		ctx.Release()
		return nil, fmt.Errorf("connect to card in reader %q: %w", target, err)
	}

	status, err := card.Status()
	if err != nil {
		card.Disconnect(scard.LeaveCard)
		ctx.Release()
		return nil, fmt.Errorf("get card status: %w", err)
	}

	slog.Debug("pcsc: connected", "reader", target, "atr", fmt.Sprintf("%X", status.Atr))
	return &Reader{ctx: ctx, card: card, name: target, atr: status.Atr}, nil
}

// Transmit implements gp.Transport.
func (r *Reader) Transmit(command []byte) ([]byte, error) {
	slog.Debug("pcsc: transmit", "apdu", fmt.Sprintf("%X", command))
	response, err := r.card.Transmit(command)
	if err != nil {
		return nil, fmt.Errorf("transmit failed: %w", err)
	}
	slog.Debug("pcsc: response", "data", fmt.Sprintf("%X", response))
	return response, nil
}

// Close disconnects the card and releases the PC/SC context.
func (r *Reader) Close() error {
	if r.card != nil {
		r.card.Disconnect(scard.LeaveCard)
	}
	if r.ctx != nil {
		r.ctx.Release()
	}
	return nil
}

// Name returns the reader's PC/SC name.
func (r *Reader) Name() string { return r.name }

// ATRHex returns the Answer-To-Reset bytes as uppercase hex.
func (r *Reader) ATRHex() string { return fmt.Sprintf("%X", r.atr) }

// Reconnect resets the card connection; cold performs a full power cycle.
func (r *Reader) Reconnect(cold bool) error {
	if r.card == nil {
		return fmt.Errorf("no card connected")
	}
	disposition := scard.ResetCard
	if cold {
		disposition = scard.UnpowerCard
	}
	if err := r.card.Reconnect(scard.ShareShared, scard.ProtocolAny, disposition); err != nil {
		return fmt.Errorf("reconnect failed: %w", err)
	}
	if status, err := r.card.Status(); err == nil {
		r.atr = status.Atr
	}
	return nil
}
