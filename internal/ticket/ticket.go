// Package ticket sends kitchen tickets for placed orders.
package ticket

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Lixing-Zhang/restaurant-backend/internal/models"
)

const rule = "========================================="

// Sink receives placed orders
type Sink interface {
	Send(ctx context.Context, order *models.Order) error
	Close() error
}

// Render writes the printable ticket of an order
func Render(w io.Writer, order *models.Order, loc *time.Location) error {
	if loc == nil {
		loc = time.Local
	}

	var b strings.Builder
	b.WriteString(rule + "\n")
	fmt.Fprintf(&b, "  REGISTRO DE COMANDA - %s\n", order.CreatedAt.In(loc).Format("02/01/2006 15:04:05"))
	fmt.Fprintf(&b, "  %s\n", order.CustomerLabel)
	b.WriteString(rule + "\n\n")

	if len(order.Lines) == 0 {
		b.WriteString("Nenhum item foi adicionado ao pedido.\n")
	} else {
		for _, line := range order.Lines {
			fmt.Fprintf(&b, "(%dx) %s ........ R$ %s\n", line.Quantity, line.DishName, line.Subtotal().StringFixed(2))
		}
		b.WriteString("-----------------------------------------\n")
		fmt.Fprintf(&b, "TOTAL GERAL: R$ %s\n", order.Total().StringFixed(2))
	}

	_, err := io.WriteString(w, b.String())
	return err
}

// FileName returns the ticket file name of an order
func FileName(order *models.Order, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}
	id := order.ID
	if len(id) > 8 {
		id = id[:8]
	}
	return fmt.Sprintf("Comanda_%s_%s.txt", order.CreatedAt.In(loc).Format("20060102_150405"), id)
}

// FileSink writes one text ticket per order into a directory
type FileSink struct {
	dir string
	loc *time.Location
}

// NewFileSink creates the directory if needed
func NewFileSink(dir string, loc *time.Location) (*FileSink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create ticket directory: %w", err)
	}
	if loc == nil {
		loc = time.Local
	}
	return &FileSink{dir: dir, loc: loc}, nil
}

func (s *FileSink) Send(ctx context.Context, order *models.Order) error {
	path := filepath.Join(s.dir, FileName(order, s.loc))

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return fmt.Errorf("failed to create ticket: %w", err)
	}
	if err := Render(f, order, s.loc); err != nil {
		f.Close()
		return fmt.Errorf("failed to write ticket: %w", err)
	}
	return f.Close()
}

func (s *FileSink) Close() error {
	return nil
}

// MultiSink fans an order out to several sinks. Every sink is tried.
type MultiSink []Sink

func (m MultiSink) Send(ctx context.Context, order *models.Order) error {
	var errs []error
	for _, s := range m {
		if err := s.Send(ctx, order); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m MultiSink) Close() error {
	var errs []error
	for _, s := range m {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
