package handlers

import (
	"io"
	"strings"
)

// writeSSEData отправляет блок данных SSE. Многострочный текст разбивается
// на несколько строк data:, клиент склеит их через перевод строки.
func writeSSEData(w io.Writer, data string) (int, error) {
	var b strings.Builder
	for _, line := range strings.Split(data, "\n") {
		b.WriteString("data: ")
		b.WriteString(line)
		b.WriteString("\n")
	}
	b.WriteString("\n")
	return io.WriteString(w, b.String())
}

// writeSSEEvent отправляет SSE событие с типом.
func writeSSEEvent(w io.Writer, eventType, data string) (int, error) {
	n, err := io.WriteString(w, "event: "+eventType+"\n")
	if err != nil {
		return n, err
	}
	m, err := writeSSEData(w, data)
	return n + m, err
}
