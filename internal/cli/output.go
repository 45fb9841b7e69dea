package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/andthezhang/takopi-swarm/internal/topics"
)

// echoStatusLine prints the one-line human rendering of a topic
// status:
//
//	-100123:19  ctx=takopi@main  title="Takopi @main"  default_engine=claude  sessions=claude, codex
func echoStatusLine(w io.Writer, st topics.Status) {
	sessions := "none"
	if len(st.Sessions) > 0 {
		sessions = strings.Join(st.Sessions, ", ")
	}
	title := st.TopicTitle
	if title == "" {
		title = "-"
	}
	engine := st.DefaultEngine
	if engine == "" {
		engine = "-"
	}
	fmt.Fprintf(w, "%d:%d  ctx=%s  title=%q  default_engine=%s  sessions=%s\n",
		st.ChatID, st.ThreadID, st.ContextLabel(), title, engine, sessions)
}

// jsonDump writes one compact JSON document per call.
func jsonDump(w io.Writer, payload any) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return enc.Encode(payload)
}

func isTerminalWriter(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return term.IsTerminal(int(f.Fd()))
}
