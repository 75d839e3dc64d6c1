package open

import (
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/Zuo-Peng/lms-log-explorer/internal/index"
)

// OpenSession opens the log file a session came from at its request line.
func OpenSession(ix *index.Index, id string) error {
	session, err := ix.Get(id)
	if err != nil {
		return fmt.Errorf("%w: %s", err, id)
	}

	filePath := session.SourcePath
	if _, err := os.Stat(filePath); err != nil {
		return fmt.Errorf("file not found: %s", filePath)
	}

	lineNum := max(session.SourceLine, 1)

	editor := os.Getenv("EDITOR")
	if editor == "" {
		editor = "less"
	}

	log.Debug().Str("editor", editor).Str("path", filePath).Int("line", lineNum).Msg("opening session source")
	return openInEditor(editor, filePath, lineNum).Run()
}

func openInEditor(editor, filePath string, lineNum int) *exec.Cmd {
	var cmd *exec.Cmd

	switch {
	case strings.Contains(editor, "vim") || strings.Contains(editor, "nvim"):
		cmd = exec.Command(editor, fmt.Sprintf("+%d", lineNum), filePath)
	case strings.Contains(editor, "code"):
		cmd = exec.Command(editor, "--goto", filePath+":"+strconv.Itoa(lineNum))
	case strings.Contains(editor, "less"):
		cmd = exec.Command(editor, "+"+strconv.Itoa(lineNum), filePath)
	default:
		cmd = exec.Command(editor, filePath)
	}

	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd
}
