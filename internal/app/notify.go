package app

type ToastKind string

const (
	ToastInfo    ToastKind = "info"
	ToastSuccess ToastKind = "success"
	ToastError   ToastKind = "error"
)

// Notifier surfaces command outcomes to the user.
type Notifier interface {
	Toast(kind ToastKind, msg string)
}

type NotifierFunc func(kind ToastKind, msg string)

func (f NotifierFunc) Toast(kind ToastKind, msg string) { f(kind, msg) }

type nopNotifier struct{}

func (nopNotifier) Toast(ToastKind, string) {}
