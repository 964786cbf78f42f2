// Package billing orchestrates subscription and payment changes
// through the payment gateway collaborator.
//
// The ordering rule that everything here follows: the gateway confirms
// first, local state changes second. An adjustment is all-or-nothing
// per call; a gateway failure leaves stored seats, storage, payment
// method, and tax profile exactly as they were. The orchestrator never
// retries and never deduplicates; when the processor needs client-side
// payment authentication it returns a PaymentConfirmation for the
// caller to complete instead of polling.
//
// Gateway failures carry a processor-specific code inside
// *GatewayError. One of them gets special treatment: a reinstate after
// the billing period has ended (GatewayCodePeriodEnded) is surfaced as
// a domain error, because no amount of retrying will bring that
// subscription back.
package billing
