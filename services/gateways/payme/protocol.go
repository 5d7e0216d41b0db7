package payme

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// JSON-RPC and merchant protocol error codes.
const (
	CodeParseError          = -32700
	CodeInvalidRequest      = -32600
	CodeMethodNotFound      = -32601
	CodeInsufficientRights  = -32504
	CodeSystemError         = -32400
	CodeInvalidAmount       = -31001
	CodeTransactionNotFound = -31003
	CodeCantCancel          = -31007
	CodeCantPerform         = -31008
	CodeOrderNotFound       = -31050
)

// ReasonTimeout is the cancel reason Payme expects for an expired transaction.
const ReasonTimeout = 4

const (
	MethodCheckPerformTransaction = "CheckPerformTransaction"
	MethodCreateTransaction       = "CreateTransaction"
	MethodPerformTransaction      = "PerformTransaction"
	MethodCancelTransaction       = "CancelTransaction"
	MethodCheckTransaction        = "CheckTransaction"
	MethodGetStatement            = "GetStatement"
)

type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
}

type Message struct {
	RU string `json:"ru"`
	UZ string `json:"uz"`
	EN string `json:"en"`
}

type Error struct {
	Code    int     `json:"code"`
	Message Message `json:"message"`
	Data    string  `json:"data,omitempty"`
}

type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  interface{}     `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

var messages = map[int]Message{
	CodeParseError:          {RU: "Ошибка разбора JSON", UZ: "JSON tahlil xatosi", EN: "Parse error"},
	CodeInvalidRequest:      {RU: "Неверный запрос", UZ: "Noto'g'ri so'rov", EN: "Invalid request"},
	CodeMethodNotFound:      {RU: "Метод не найден", UZ: "Metod topilmadi", EN: "Method not found"},
	CodeInsufficientRights:  {RU: "Недостаточно привилегий", UZ: "Huquqlar yetarli emas", EN: "Insufficient privileges"},
	CodeSystemError:         {RU: "Системная ошибка", UZ: "Tizim xatosi", EN: "System error"},
	CodeInvalidAmount:       {RU: "Неверная сумма", UZ: "Noto'g'ri summa", EN: "Invalid amount"},
	CodeTransactionNotFound: {RU: "Транзакция не найдена", UZ: "Tranzaksiya topilmadi", EN: "Transaction not found"},
	CodeCantCancel:          {RU: "Невозможно отменить транзакцию", UZ: "Tranzaksiyani bekor qilib bo'lmaydi", EN: "Unable to cancel transaction"},
	CodeCantPerform:         {RU: "Невозможно выполнить операцию", UZ: "Amalni bajarib bo'lmaydi", EN: "Unable to perform operation"},
	CodeOrderNotFound:       {RU: "Счет не найден", UZ: "Hisob topilmadi", EN: "Account not found"},
}

// NewError builds a protocol error for code; data names the offending field.
func NewError(code int, data string) *Error {
	return &Error{Code: code, Message: messages[code], Data: data}
}

// Account holds the merchant fields of a payment. Payme sends numeric account
// values either as strings or as JSON numbers.
type Account map[string]string

func (a *Account) UnmarshalJSON(b []byte) error {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var raw map[string]interface{}
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	out := make(Account, len(raw))
	for k, v := range raw {
		switch t := v.(type) {
		case string:
			out[k] = t
		case json.Number:
			out[k] = t.String()
		case nil:
		default:
			out[k] = fmt.Sprint(t)
		}
	}
	*a = out
	return nil
}

type checkPerformParams struct {
	Amount  int64   `json:"amount"`
	Account Account `json:"account"`
}

type createParams struct {
	ID      string  `json:"id"`
	Time    int64   `json:"time"`
	Amount  int64   `json:"amount"`
	Account Account `json:"account"`
}

type idParams struct {
	ID string `json:"id"`
}

type cancelParams struct {
	ID     string `json:"id"`
	Reason *int   `json:"reason"`
}

type statementParams struct {
	From int64 `json:"from"`
	To   int64 `json:"to"`
}

type Additional struct {
	AccountNumber string `json:"account_number"`
	Balance       string `json:"account_balance"`
	ClientName    string `json:"client_name"`
	ClientPhone   string `json:"client_phone"`
}

type CheckPerformResult struct {
	Allow      bool        `json:"allow"`
	Additional *Additional `json:"additional,omitempty"`
}

type TransactionResult struct {
	Transaction string `json:"transaction"`
	State       int    `json:"state"`
	CreateTime  int64  `json:"create_time,omitempty"`
	PerformTime *int64 `json:"perform_time,omitempty"`
	CancelTime  *int64 `json:"cancel_time,omitempty"`
}

type CheckTransactionResult struct {
	CreateTime  int64  `json:"create_time"`
	PerformTime int64  `json:"perform_time"`
	CancelTime  int64  `json:"cancel_time"`
	Transaction string `json:"transaction"`
	State       int    `json:"state"`
	Reason      *int   `json:"reason"`
}

type StatementEntry struct {
	ID          string            `json:"id"`
	Time        int64             `json:"time"`
	Amount      int64             `json:"amount"`
	Account     map[string]string `json:"account"`
	CreateTime  int64             `json:"create_time"`
	PerformTime int64             `json:"perform_time"`
	CancelTime  int64             `json:"cancel_time"`
	Transaction string            `json:"transaction"`
	State       int               `json:"state"`
	Reason      *int              `json:"reason"`
}

type StatementResult struct {
	Transactions []StatementEntry `json:"transactions"`
}
