package accounts

import (
	"errors"
	"fmt"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/gofiber/fiber/v2"
	"github.com/goliatone/go-router"
	"github.com/goliatone/go-router/flash"
	"github.com/google/uuid"
)

// RegisterAccountRoutes mounts the signup, session, account, and invitation
// endpoints. The RouteIdentity middleware must already be installed so every
// handler sees a resolved user.
func RegisterAccountRoutes[T any](app router.Router[T], opts ...AccountControllerOption) {

	controller := NewAccountController(opts...)

	app.Get(controller.Routes.Signup, controller.SignupShow).
		SetName("signup.get")
	app.Post(controller.Routes.Signup, controller.SignupCreate).
		SetName("signup.post")

	app.Get(controller.Routes.Login, controller.LoginShow).
		SetName("login.get")
	app.Post(controller.Routes.Login, controller.LoginPost).
		SetName("login.post")

	app.Get(controller.Routes.Logout, controller.LogOut).
		SetName("logout.get")

	app.Post(controller.Routes.Accounts, controller.AccountCreate).
		SetName("account.post")
	app.Post(fmt.Sprintf("%s/:id/delete", controller.Routes.Accounts), controller.AccountDelete).
		SetName("account-delete.post")
	app.Post(fmt.Sprintf("%s/:id/rename", controller.Routes.Accounts), controller.AccountRename).
		SetName("account-rename.post")

	app.Post(fmt.Sprintf("%s/:id/role", controller.Routes.Memberships), controller.MembershipRole).
		SetName("membership-role.post")
	app.Post(fmt.Sprintf("%s/:id/delete", controller.Routes.Memberships), controller.MembershipDelete).
		SetName("membership-delete.post")

	app.Post(controller.Routes.Invitations, controller.InvitationCreate).
		SetName("invitation.post")
	app.Get(fmt.Sprintf("%s/:secret", controller.Routes.Invitations), controller.InvitationShow).
		SetName("invitation.get")
	app.Post(fmt.Sprintf("%s/:secret/accept", controller.Routes.Invitations), controller.InvitationAccept).
		SetName("invitation-accept.post")
	app.Post(fmt.Sprintf("%s/:secret/decline", controller.Routes.Invitations), controller.InvitationDecline).
		SetName("invitation-decline.post")
	app.Post(fmt.Sprintf("%s/:id/delete", controller.Routes.Invitations), controller.InvitationDelete).
		SetName("invitation-delete.post")

	app.Get(controller.Routes.ForgottenPassword, controller.ForgottenPasswordShow).
		SetName("forgotten-password.get")
	app.Post(controller.Routes.ForgottenPassword, controller.ForgottenPasswordPost).
		SetName("forgotten-password.post")
	app.Get(fmt.Sprintf("%s/:secret", controller.Routes.ResetPassword), controller.ResetPasswordShow).
		SetName("reset-password.get")
	app.Post(fmt.Sprintf("%s/:secret", controller.Routes.ResetPassword), controller.ResetPasswordPost).
		SetName("reset-password.post")
}

type AccountControllerRoutes struct {
	Signup            string
	Login             string
	Logout            string
	Accounts          string
	Memberships       string
	Invitations       string
	ForgottenPassword string
	ResetPassword     string
}

type AccountControllerViews struct {
	Signup            string
	Login             string
	Invitation        string
	ForgottenPassword string
	ResetPassword     string
}

type AccountController struct {
	Debug        bool
	Logger       Logger
	Identity     IdentityManager
	Memberships  MembershipManager
	Invitations  InvitationManager
	Identifier   *RouteIdentity
	Routes       *AccountControllerRoutes
	Views        *AccountControllerViews
	ErrorHandler router.ErrorHandler
}

type AccountControllerOption func(*AccountController) *AccountController

func NewAccountController(opts ...AccountControllerOption) *AccountController {
	c := &AccountController{
		Logger:       defLogger{},
		ErrorHandler: defaultErrHandler,
		Routes: &AccountControllerRoutes{
			Signup:            "/signup",
			Login:             "/login",
			Logout:            "/logout",
			Accounts:          "/accounts",
			Memberships:       "/memberships",
			Invitations:       "/invitations",
			ForgottenPassword: "/forgotten_password",
			ResetPassword:     "/reset_password",
		},
		Views: &AccountControllerViews{
			Signup:            "signup",
			Login:             "login",
			Invitation:        "invitation",
			ForgottenPassword: "forgotten_password",
			ResetPassword:     "reset_password",
		},
	}

	for _, opt := range opts {
		c = opt(c)
	}

	if c.Identity == nil {
		panic("Missing IdentityManager in account controller...")
	}

	if c.Memberships == nil {
		panic("Missing MembershipManager in account controller...")
	}

	if c.Invitations == nil {
		panic("Missing InvitationManager in account controller...")
	}

	return c
}

func WithControllerIdentity(identity IdentityManager) AccountControllerOption {
	return func(c *AccountController) *AccountController {
		c.Identity = identity
		return c
	}
}

func WithControllerMemberships(memberships MembershipManager) AccountControllerOption {
	return func(c *AccountController) *AccountController {
		c.Memberships = memberships
		return c
	}
}

func WithControllerInvitations(invitations InvitationManager) AccountControllerOption {
	return func(c *AccountController) *AccountController {
		c.Invitations = invitations
		return c
	}
}

func WithControllerIdentifier(identifier *RouteIdentity) AccountControllerOption {
	return func(c *AccountController) *AccountController {
		c.Identifier = identifier
		return c
	}
}

func WithControllerLogger(logger Logger) AccountControllerOption {
	return func(c *AccountController) *AccountController {
		if logger != nil {
			c.Logger = logger
		}
		return c
	}
}

func (a *AccountController) SignupShow(ctx router.Context) error {
	return ctx.Render(a.Views.Signup, router.ViewContext{
		"errors": map[string]string{},
		"record": SignupMessage{},
	})
}

// SignupCreatePayload is the signup form payload.
type SignupCreatePayload struct {
	Name            string `form:"name" json:"name"`
	Email           string `form:"email" json:"email"`
	Password        string `form:"password" json:"password"`
	ConfirmPassword string `form:"confirm_password" json:"confirm_password"`
}

func (r SignupCreatePayload) Validate() error {
	return SignupMessage{
		Name:            r.Name,
		Email:           r.Email,
		Password:        r.Password,
		ConfirmPassword: r.ConfirmPassword,
	}.Validate()
}

func (a *AccountController) SignupCreate(ctx router.Context) error {
	payload := new(SignupCreatePayload)

	if err := ctx.Bind(payload); err != nil {
		a.Logger.Error("signup parse payload: %v", err)
		return flash.WithError(ctx, router.ViewContext{
			"error_message":  err.Error(),
			"system_message": "Error parsing body",
		}).Status(fiber.StatusBadRequest).Render(a.Views.Signup, router.ViewContext{
			"errors": map[string]string{"form": "Failed to parse form"},
			"record": payload,
		})
	}

	if err := payload.Validate(); err != nil {
		return flash.WithError(ctx, router.ViewContext{
			"error_message":  err.Error(),
			"system_message": "Error validating payload",
		}).Render(a.Views.Signup, router.ViewContext{
			"record":     payload,
			"validation": FormatValidationErrorToMap(err),
		})
	}

	current, _ := UserFromRouterContext(ctx)
	session, _ := SessionFromRouterContext(ctx)

	user, fresh, err := a.Identity.Signup(ctx.Context(), SignupMessage{
		Name:            payload.Name,
		Email:           payload.Email,
		Password:        payload.Password,
		ConfirmPassword: payload.ConfirmPassword,
		Session:         session,
	}, current)
	if err != nil {
		a.Logger.Error("signup error: %v", err)
		return flash.WithError(ctx, router.ViewContext{
			"error_message":  err.Error(),
			"system_message": "Error creating user",
		}).Render(a.Views.Signup, router.ViewContext{
			"record": payload,
			"errors": []string{err.Error()},
		})
	}

	if a.Identifier != nil && (session == nil || fresh.Secret != session.Secret) {
		a.Identifier.setSessionCookie(ctx, fresh)
	}

	a.Logger.Info("user %s signed up", user.ID)

	return flash.WithSuccess(ctx, router.ViewContext{
		"system_message": "Welcome aboard",
	}).Redirect("/", fiber.StatusSeeOther)
}

func (a *AccountController) LoginShow(ctx router.Context) error {
	return ctx.Render(a.Views.Login, router.ViewContext{
		"errors": nil,
		"record": nil,
	})
}

// LoginPayload is the login form payload.
type LoginPayload struct {
	Email    string `form:"email" json:"email"`
	Password string `form:"password" json:"password"`
}

func (r LoginPayload) Validate() error {
	return LoginMessage{Email: r.Email, Password: r.Password}.Validate()
}

func (a *AccountController) LoginPost(ctx router.Context) error {
	payload := new(LoginPayload)

	if err := ctx.Bind(payload); err != nil {
		return a.ErrorHandler(ctx, err)
	}

	if err := payload.Validate(); err != nil {
		return ctx.Render(a.Views.Login, router.ViewContext{
			"record":     payload,
			"validation": FormatValidationErrorToMap(err),
		})
	}

	session, _ := SessionFromRouterContext(ctx)

	user, fresh, err := a.Identity.Login(ctx.Context(), LoginMessage{
		Email:    payload.Email,
		Password: payload.Password,
		Session:  session,
	})
	if err != nil {
		a.Logger.Error("login error: %v", err)
		return ctx.Render(a.Views.Login, router.ViewContext{
			"errors":  map[string]string{"authentication": err.Error()},
			"payload": payload,
		})
	}

	if a.Identifier != nil && (session == nil || fresh.Secret != session.Secret) {
		a.Identifier.setSessionCookie(ctx, fresh)
	}

	a.Logger.Info("user %s logged in", user.ID)

	return ctx.Redirect("/", router.StatusSeeOther)
}

func (a *AccountController) LogOut(ctx router.Context) error {
	if user, ok := UserFromRouterContext(ctx); ok {
		if err := a.Identity.Logout(ctx.Context(), user); err != nil {
			a.Logger.Error("logout error: %v", err)
		}
	}

	if a.Identifier != nil {
		a.Identifier.ClearSessionCookie(ctx)
	}

	return ctx.Redirect("/", router.StatusSeeOther)
}

// AccountPayload is the create/rename form payload.
type AccountPayload struct {
	Name string `form:"name" json:"name"`
}

func (r AccountPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Name, validation.Required, validation.Length(1, 120)),
	)
}

func (a *AccountController) AccountCreate(ctx router.Context) error {
	payload := new(AccountPayload)

	if err := ctx.Bind(payload); err != nil {
		return a.ErrorHandler(ctx, err)
	}

	if err := payload.Validate(); err != nil {
		return a.ErrorHandler(ctx, err)
	}

	user, _ := UserFromRouterContext(ctx)

	account, err := a.Memberships.CreateAccount(ctx.Context(), payload.Name, user)
	if err != nil {
		return a.fail(ctx, err, "Error creating account")
	}

	return flash.WithSuccess(ctx, router.ViewContext{
		"system_message": "Account created",
	}).Redirect(fmt.Sprintf("%s/%s", a.Routes.Accounts, account.ID), fiber.StatusSeeOther)
}

func (a *AccountController) AccountRename(ctx router.Context) error {
	accountID, err := uuid.Parse(ctx.Param("id"))
	if err != nil {
		return a.ErrorHandler(ctx, err)
	}

	payload := new(AccountPayload)
	if err := ctx.Bind(payload); err != nil {
		return a.ErrorHandler(ctx, err)
	}
	if err := payload.Validate(); err != nil {
		return a.ErrorHandler(ctx, err)
	}

	user, _ := UserFromRouterContext(ctx)

	if _, err := a.Memberships.UpdateAccount(ctx.Context(), accountID, payload.Name, user); err != nil {
		return a.fail(ctx, err, "Error renaming account")
	}

	return flash.WithSuccess(ctx, router.ViewContext{
		"system_message": "Account renamed",
	}).Redirect(fmt.Sprintf("%s/%s", a.Routes.Accounts, accountID), fiber.StatusSeeOther)
}

func (a *AccountController) AccountDelete(ctx router.Context) error {
	accountID, err := uuid.Parse(ctx.Param("id"))
	if err != nil {
		return a.ErrorHandler(ctx, err)
	}

	user, _ := UserFromRouterContext(ctx)

	if err := a.Memberships.DeleteAccount(ctx.Context(), accountID, user); err != nil {
		return a.fail(ctx, err, "Error deleting account")
	}

	return flash.WithSuccess(ctx, router.ViewContext{
		"system_message": "Account deleted",
	}).Redirect("/", fiber.StatusSeeOther)
}

// MembershipRolePayload selects the new role for a member.
type MembershipRolePayload struct {
	Role string `form:"role" json:"role"`
}

func (a *AccountController) MembershipRole(ctx router.Context) error {
	membershipID, err := uuid.Parse(ctx.Param("id"))
	if err != nil {
		return a.ErrorHandler(ctx, err)
	}

	payload := new(MembershipRolePayload)
	if err := ctx.Bind(payload); err != nil {
		return a.ErrorHandler(ctx, err)
	}

	user, _ := UserFromRouterContext(ctx)

	membership, err := a.Memberships.UpdateMembershipRole(ctx.Context(), membershipID, payload.Role, user)
	if err != nil {
		return a.fail(ctx, err, "Error updating role")
	}

	return flash.WithSuccess(ctx, router.ViewContext{
		"system_message": "Role updated",
	}).Redirect(fmt.Sprintf("%s/%s", a.Routes.Accounts, membership.AccountID), fiber.StatusSeeOther)
}

func (a *AccountController) MembershipDelete(ctx router.Context) error {
	membershipID, err := uuid.Parse(ctx.Param("id"))
	if err != nil {
		return a.ErrorHandler(ctx, err)
	}

	user, _ := UserFromRouterContext(ctx)

	if err := a.Memberships.DeleteMembership(ctx.Context(), membershipID, user); err != nil {
		return a.fail(ctx, err, "Error removing member")
	}

	return flash.WithSuccess(ctx, router.ViewContext{
		"system_message": "Member removed",
	}).Redirect("/", fiber.StatusSeeOther)
}

// InvitationCreatePayload is the invite form payload.
type InvitationCreatePayload struct {
	AccountID string `form:"account_id" json:"account_id"`
	Email     string `form:"email" json:"email"`
	Role      string `form:"role" json:"role"`
}

func (a *AccountController) InvitationCreate(ctx router.Context) error {
	payload := new(InvitationCreatePayload)

	if err := ctx.Bind(payload); err != nil {
		return a.ErrorHandler(ctx, err)
	}

	accountID, err := uuid.Parse(payload.AccountID)
	if err != nil {
		return a.ErrorHandler(ctx, err)
	}

	user, _ := UserFromRouterContext(ctx)

	_, err = a.Invitations.Invite(ctx.Context(), InviteMessage{
		AccountID: accountID,
		Email:     payload.Email,
		Role:      payload.Role,
	}, user)
	if err != nil {
		if IsRetryableMailError(err) {
			return flash.WithError(ctx, router.ViewContext{
				"system_message": "Invitation saved but the email could not be sent, try resending",
			}).Redirect(fmt.Sprintf("%s/%s", a.Routes.Accounts, accountID), fiber.StatusSeeOther)
		}
		return a.fail(ctx, err, "Error sending invitation")
	}

	return flash.WithSuccess(ctx, router.ViewContext{
		"system_message": "Invitation sent",
	}).Redirect(fmt.Sprintf("%s/%s", a.Routes.Accounts, accountID), fiber.StatusSeeOther)
}

func (a *AccountController) InvitationShow(ctx router.Context) error {
	invitation, err := a.Invitations.GetBySecret(ctx.Context(), ctx.Param("secret"))
	if err != nil {
		return a.fail(ctx, err, "Invitation not found")
	}

	current, _ := UserFromRouterContext(ctx)

	switch a.Invitations.Resolve(invitation, current) {
	case RedirectToSignup:
		return ctx.Render(a.Views.Signup, router.ViewContext{
			"record": SignupMessage{Email: invitation.Email},
			"notice": "Sign up to accept the invitation",
		})
	case LogoutThenLogin:
		return ctx.Render(a.Views.Invitation, router.ViewContext{
			"invitation": invitation,
			"notice":     "This invitation was sent to a different email. Log out first.",
		})
	default:
		return ctx.Render(a.Views.Invitation, router.ViewContext{
			"invitation": invitation,
		})
	}
}

func (a *AccountController) InvitationAccept(ctx router.Context) error {
	invitation, err := a.Invitations.GetBySecret(ctx.Context(), ctx.Param("secret"))
	if err != nil {
		return a.fail(ctx, err, "Invitation not found")
	}

	user, _ := UserFromRouterContext(ctx)

	membership, err := a.Invitations.Accept(ctx.Context(), invitation, user)
	if err != nil {
		return a.fail(ctx, err, "Error accepting invitation")
	}

	return flash.WithSuccess(ctx, router.ViewContext{
		"system_message": "Invitation accepted",
	}).Redirect(fmt.Sprintf("%s/%s", a.Routes.Accounts, membership.AccountID), fiber.StatusSeeOther)
}

func (a *AccountController) InvitationDecline(ctx router.Context) error {
	invitation, err := a.Invitations.GetBySecret(ctx.Context(), ctx.Param("secret"))
	if err != nil {
		return a.fail(ctx, err, "Invitation not found")
	}

	user, _ := UserFromRouterContext(ctx)

	if err := a.Invitations.Decline(ctx.Context(), invitation, user); err != nil {
		return a.fail(ctx, err, "Error declining invitation")
	}

	return flash.WithSuccess(ctx, router.ViewContext{
		"system_message": "Invitation declined",
	}).Redirect("/", fiber.StatusSeeOther)
}

func (a *AccountController) InvitationDelete(ctx router.Context) error {
	invitationID, err := uuid.Parse(ctx.Param("id"))
	if err != nil {
		return a.ErrorHandler(ctx, err)
	}

	user, _ := UserFromRouterContext(ctx)

	if err := a.Invitations.DeleteInvitation(ctx.Context(), invitationID, user); err != nil {
		return a.fail(ctx, err, "Error withdrawing invitation")
	}

	return flash.WithSuccess(ctx, router.ViewContext{
		"system_message": "Invitation withdrawn",
	}).Redirect("/", fiber.StatusSeeOther)
}

func (a *AccountController) ForgottenPasswordShow(ctx router.Context) error {
	return ctx.Render(a.Views.ForgottenPassword, router.ViewContext{
		"errors": nil,
	})
}

// ForgottenPasswordPayload carries the email to send a reset link to.
type ForgottenPasswordPayload struct {
	Email string `form:"email" json:"email"`
}

func (a *AccountController) ForgottenPasswordPost(ctx router.Context) error {
	payload := new(ForgottenPasswordPayload)

	if err := ctx.Bind(payload); err != nil {
		return a.ErrorHandler(ctx, err)
	}

	if err := a.Identity.ForgottenPassword(ctx.Context(), payload.Email); err != nil {
		a.Logger.Error("forgotten password error: %v", err)
	}

	// Same response either way so the form can't probe for known emails.
	return flash.WithSuccess(ctx, router.ViewContext{
		"system_message": "If that email exists you'll receive a reset link shortly",
	}).Redirect(a.Routes.Login, fiber.StatusSeeOther)
}

func (a *AccountController) ResetPasswordShow(ctx router.Context) error {
	return ctx.Render(a.Views.ResetPassword, router.ViewContext{
		"secret": ctx.Param("secret"),
	})
}

// ResetPasswordPayload finalizes a password reset.
type ResetPasswordPayload struct {
	Password        string `form:"password" json:"password"`
	ConfirmPassword string `form:"confirm_password" json:"confirm_password"`
}

func (a *AccountController) ResetPasswordPost(ctx router.Context) error {
	payload := new(ResetPasswordPayload)

	if err := ctx.Bind(payload); err != nil {
		return a.ErrorHandler(ctx, err)
	}

	secret := ctx.Param("secret")

	if err := a.Identity.ResetPassword(ctx.Context(), secret, payload.Password, payload.ConfirmPassword); err != nil {
		return flash.WithError(ctx, router.ViewContext{
			"error_message":  err.Error(),
			"system_message": "Error resetting password",
		}).Render(a.Views.ResetPassword, router.ViewContext{
			"secret": secret,
		})
	}

	return flash.WithSuccess(ctx, router.ViewContext{
		"system_message": "Password updated, log in with your new password",
	}).Redirect(a.Routes.Login, fiber.StatusSeeOther)
}

func (a *AccountController) fail(ctx router.Context, err error, msg string) error {
	a.Logger.Error("%s: %v", msg, err)
	return flash.WithError(ctx, router.ViewContext{
		"error_message":  err.Error(),
		"system_message": msg,
	}).Redirect("/", fiber.StatusSeeOther)
}

// FormatValidationErrorToMap flattens ozzo validation errors into a map
// suitable for template rendering.
func FormatValidationErrorToMap(err error) map[string]string {
	out := map[string]string{}
	if err == nil {
		return out
	}

	var verrs validation.Errors
	if ok := errors.As(err, &verrs); ok {
		for field, ferr := range verrs {
			out[field] = ferr.Error()
		}
		return out
	}

	out["error"] = err.Error()
	return out
}

func defaultErrHandler(c router.Context, err error) error {
	return c.Render("errors/500", router.ViewContext{
		"message": err.Error(),
	})
}
