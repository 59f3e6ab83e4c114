package cli

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/odyssey-erp/catalogsync/internal/catalog"
	"github.com/odyssey-erp/catalogsync/internal/productdetail"
	"github.com/odyssey-erp/catalogsync/internal/productlist"
	"github.com/odyssey-erp/catalogsync/internal/reviews"
)

const browseHelp = `Commands:
  next | prev | page N       move through the list
  sort FIELD                 name, price or created_at; again to flip order
  search TEXT                filter by name; "search" alone clears
  open ID | back             show a product | return to the list
  delete [ID]                delete a product (the open one without ID)
  review TEXT                add a review to the open product
  rnext | rprev              page through reviews
  rename NAME | price VALUE  edit the open product
  help | quit`

func (c *CLI) newBrowseCmd() *cobra.Command {
	var settle time.Duration
	cmd := &cobra.Command{
		Use:   "browse",
		Short: "Interactive catalog session that redraws as data changes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s := &session{
				out:    c.out(),
				list:   c.stack.ProductList(),
				detail: c.stack.ProductDetail(),
				settle: settle,
			}
			return s.run(cmd.Context(), cmd.InOrStdin())
		},
	}
	cmd.Flags().DurationVar(&settle, "settle", 5*time.Second, "How long to wait for data after each command")
	return cmd
}

type mode int

const (
	modeList mode = iota
	modeDetail
)

// session redraws the current screen on every controller notification and
// executes one command per input line.
type session struct {
	out    io.Writer
	list   *productlist.Controller
	detail *productdetail.Controller
	settle time.Duration

	mu   sync.Mutex
	mode mode
	last string
}

var errQuit = errors.New("quit")

func (s *session) run(ctx context.Context, in io.Reader) error {
	s.list.Mount(func(productlist.View) { s.redraw(false) })
	defer s.list.Unmount()
	defer s.detail.Unmount()

	s.wait(ctx)
	s.redraw(true)

	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		err := s.exec(ctx, line)
		if errors.Is(err, errQuit) {
			return nil
		}
		if err != nil {
			s.printf("Error: %s\n", describe(err))
		}
		s.wait(ctx)
		s.redraw(false)
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return scanner.Err()
}

func (s *session) exec(ctx context.Context, line string) error {
	verb, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)
	switch strings.ToLower(verb) {
	case "quit", "exit", "q":
		return errQuit
	case "help", "?":
		s.printf("%s\n", browseHelp)
		return nil
	case "next":
		s.list.NextPage()
	case "prev":
		s.list.PrevPage()
	case "page":
		n, err := strconv.Atoi(arg)
		if err != nil {
			return fmt.Errorf("page needs a number, got %q", arg)
		}
		s.list.SetPage(n)
	case "sort":
		return s.list.SetSort(catalog.SortField(arg))
	case "search":
		s.list.SetSearch(arg)
	case "open":
		id, err := parseID(arg)
		if err != nil {
			return err
		}
		s.open(id)
	case "back":
		s.back()
	case "delete":
		return s.delete(ctx, arg)
	case "review":
		return s.review(ctx, arg)
	case "rnext", "rprev":
		if s.current() != modeDetail {
			return errors.New("open a product first")
		}
		if verb == "rnext" {
			s.detail.Reviews().NextPage()
		} else {
			s.detail.Reviews().PrevPage()
		}
	case "rename":
		return s.edit(ctx, catalog.ProductForm{Name: arg})
	case "price":
		return s.edit(ctx, catalog.ProductForm{Price: arg})
	default:
		return fmt.Errorf("unknown command %q, try help", verb)
	}
	return nil
}

func (s *session) open(id int64) {
	s.mu.Lock()
	s.mode = modeDetail
	s.mu.Unlock()
	s.detail.Mount(func(productdetail.View) { s.redraw(false) }, func(reviews.View) { s.redraw(false) })
	s.detail.SetProduct(id)
	s.redraw(false)
}

func (s *session) back() {
	s.mu.Lock()
	s.mode = modeList
	s.mu.Unlock()
	s.detail.Unmount()
	s.detail.SetProduct(0)
	s.redraw(false)
}

func (s *session) delete(ctx context.Context, arg string) error {
	if arg == "" {
		if s.current() != modeDetail {
			return errors.New("delete needs an id")
		}
		if err := s.detail.Delete(ctx); err != nil {
			return err
		}
		s.printf("Product deleted.\n")
		s.back()
		return nil
	}
	id, err := parseID(arg)
	if err != nil {
		return err
	}
	if err := s.list.Delete(ctx, id); err != nil {
		return err
	}
	s.printf("Product %d deleted.\n", id)
	return nil
}

func (s *session) review(ctx context.Context, text string) error {
	if s.current() != modeDetail {
		return errors.New("open a product first")
	}
	rv := s.detail.Reviews()
	rv.OpenForm()
	rv.SetDraft(text)
	if err := rv.Submit(ctx); err != nil {
		return err
	}
	s.printf("Review added.\n")
	return nil
}

func (s *session) edit(ctx context.Context, form catalog.ProductForm) error {
	if s.current() != modeDetail {
		return errors.New("open a product first")
	}
	_, err := s.detail.Update(ctx, form)
	return err
}

func (s *session) current() mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// wait blocks until the current screen has nothing in flight, or the
// settle time passes.
func (s *session) wait(ctx context.Context) {
	if s.settle <= 0 {
		return
	}
	deadline := time.NewTimer(s.settle)
	defer deadline.Stop()
	tick := time.NewTicker(10 * time.Millisecond)
	defer tick.Stop()
	for !s.idle() {
		select {
		case <-ctx.Done():
			return
		case <-deadline.C:
			return
		case <-tick.C:
		}
	}
}

func (s *session) idle() bool {
	if s.current() == modeDetail {
		d := s.detail.View()
		r := s.detail.Reviews().View()
		return d.Status != productdetail.StatusLoading && !d.Refreshing && !r.Loading && !r.Refreshing && !r.Submitting
	}
	v := s.list.View()
	return !v.Loading && !v.Refreshing && !v.Placeholder
}

// redraw prints the current screen unless it is what was printed last.
func (s *session) redraw(force bool) {
	var buf bytes.Buffer
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mode == modeDetail {
		renderDetailView(&buf, s.detail.View())
		renderReviewsView(&buf, s.detail.Reviews().View())
	} else {
		renderListView(&buf, s.list.View())
	}
	screen := buf.String()
	if !force && screen == s.last {
		return
	}
	s.last = screen
	_, _ = io.WriteString(s.out, screen)
}

func (s *session) printf(format string, args ...any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, _ = fmt.Fprintf(s.out, format, args...)
	s.last = ""
}

func describe(err error) string {
	var remote *catalog.RemoteError
	if errors.As(err, &remote) && remote.Message != "" {
		return remote.Message
	}
	return err.Error()
}
