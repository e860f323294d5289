package keyboard

import (
	"io"

	"github.com/kcore-dev/kcore/task"
	"golang.org/x/exp/slog"
)

// PrintKeypresses returns a future that reads scancodes from stream forever and writes every key
// they decode to out: characters as themselves and other keys by name
func PrintKeypresses(logger *slog.Logger, stream *ScancodeStream, out io.Writer) task.Future {
	return task.Async(func(aw *task.Await) {
		var decoder Decoder
		for {
			scancode := task.Next(aw, stream.PollNext)

			key, ok := decoder.Process(scancode)
			if !ok {
				continue
			}

			_, err := io.WriteString(out, key.String())
			if err != nil {
				logger.Error("failed to echo key", slog.String("Key", key.String()), slog.Any("error", err))
			}
		}
	})
}
