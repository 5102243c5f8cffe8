// Package cli реализует инструмент командной строки Formata.
//
// # Обзор
//
// CLI — клиентская утилита для взаимодействия с Formata API.
// Работает через HTTP, не импортирует внутренние пакеты системы.
// CLI используется для управления заявками, окнами отправки
// и состоянием целевых платформ.
//
// # Ключевые компоненты
//
// ## Client
//
// HTTP-клиент для Formata API. Инкапсулирует все HTTP-запросы,
// парсинг ответов (DataResponse, ListResponse, ErrorResponse)
// и обработку ошибок.
//
//	client := cli.NewClient("http://localhost:8080")
//	apps, err := client.ListApplications(cli.ListApplicationsOpts{})
//
// ## Output
//
// Форматирование вывода. Поддерживает два режима:
//   - Таблицы (text/tabwriter) — по умолчанию
//   - JSON (json.MarshalIndent) — с флагом --json
//
// Данные выводятся в stdout, сообщения (Success/Error) — в stderr.
// Это позволяет использовать pipe: formata application list --json | jq .
//
// ## Commands
//
// Cobra-команды организованы по ресурсам:
//   - application: list, submit, show, cancel, progress
//   - window: list, create, show, update, delete, enable, disable
//   - target: reset
//
// Каждая группа создаётся через фабричную функцию (NewApplicationCmd
// и т.д.), принимающую clientFn и outputFn — замыкания для ленивого
// создания Client и Output после парсинга PersistentFlags.
package cli
