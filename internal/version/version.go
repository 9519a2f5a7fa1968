// Package version хранит сведения о сборке, которые проставляются через -ldflags:
//
//	-X github.com/vladislavdragonenkov/orderms/internal/version.version=v1.2.3
package version

import (
	"fmt"
	"strings"
)

var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// GetVersion возвращает версию сборки; её отдаёт /healthz.
func GetVersion() string { return version }

// UserAgent используется как client id Kafka и имя соединения RabbitMQ.
// Kafka допускает в client id только [A-Za-z0-9._-], поэтому остальные символы версии заменяются.
func UserAgent() string {
	return "orderms-" + strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '_', r == '-':
			return r
		default:
			return '_'
		}
	}, version)
}

// String возвращает полную строку сборки для стартового лога.
func String() string {
	return fmt.Sprintf("version=%s commit=%s date=%s", version, commit, date)
}
