// Package retry — политика повторных попыток с exponential backoff.
//
// Policy решает, стоит ли повторять упавший шаг (через caller-supplied
// классификатор ошибок) и сколько ждать перед повтором. У отправки формы
// отдельный, меньший бюджет попыток — повторная отправка рискует
// дублировать side effects на цели.
package retry
