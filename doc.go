// Package portal is a server rendered authentication front end: login and a
// three step registration wizard in front of a remote identity service, with
// a protected dashboard gated on the current session.
//
// Session store:
//   - SessionStore owns the current user and the loading flag. A new store
//     is loading until Restore settles, so guards never redirect while the
//     stored token is still being checked.
//   - Login, Register and Restore are serialized: a second operation while one
//     is in flight fails with ErrOperationInFlight. Logout is synchronous.
//   - Observers added with Subscribe see every transition in order, outside
//     the store lock.
//
// Guards:
//   - RouteGuard and PublicGuard turn a State into a Decision (loading,
//     redirect or render). ProtectedRoute and PublicOnly apply the same
//     decisions as fiber middlewares.
//
// Registration:
//   - Wizard collects a Draft across account details, credentials and an
//     optional profile picture. Each step has a validation gate, Submit and
//     Skip register through any Registrar, usually the request SessionStore.
//   - Between requests the wizard lives in a DraftStore as a WizardSnapshot.
//
// Failures carry a FailureKind (see KindOf) while views show collapsed
// messages such as MsgInvalidLogin.
package portal
