package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/platinummonkey/apilogin/pkg/users"
)

// requiredUserData must be present in userdata when creating a user
var requiredUserData = []string{"username", "firstname", "lastname", "email"}

// resolve finds the user named by the userid/useridfield pair
func (s *Service) resolve(ctx context.Context, req *request) (*users.Identity, error) {
	field := req.params[ParamUserIDField]
	value := req.params[ParamUserID]

	ident, err := s.users.Resolve(ctx, users.LookupField(field), value)
	if errors.Is(err, users.ErrNotFound) {
		return nil, notFound(field, value)
	}
	if err != nil {
		return nil, internal(MsgDatabase, err)
	}
	return ident, nil
}

func notFound(field, value string) *Error {
	return failf("User not found with %s equal to %s.", field, value)
}

func (s *Service) logUser(ctx context.Context, req *request) (Response, error) {
	ident, err := s.resolve(ctx, req)
	if err != nil {
		return Response{}, err
	}

	token, err := s.generator.New(ident.ID, req.params[ParamUserAgent], req.params[ParamRedirect], req.now)
	if err != nil {
		return Response{}, internal(MsgTokenGeneration, err)
	}

	if err := s.tokens.Issue(ctx, token); err != nil {
		return Response{}, internal(MsgDatabase, err)
	}

	s.metrics.TokenIssued()
	s.log(ctx).WithField("userid", ident.ID).Info("Login token issued")

	return Response{Success: true, Data: ident.ID, Token: token.Token}, nil
}

func (s *Service) getUser(ctx context.Context, req *request) (Response, error) {
	ident, err := s.resolve(ctx, req)
	if err != nil {
		return Response{}, err
	}

	record, err := s.users.Get(ctx, ident.ID, req.params.List(ParamFields))
	if errors.Is(err, users.ErrNotFound) {
		return Response{}, notFound(req.params[ParamUserIDField], req.params[ParamUserID])
	}
	if err != nil {
		return Response{}, internal(MsgDatabase, err)
	}

	return Response{Success: true, Data: record}, nil
}

func (s *Service) getAllUsers(ctx context.Context, req *request) (Response, error) {
	records, err := s.users.List(ctx, req.params.List(ParamFields))
	if err != nil {
		return Response{}, internal(MsgDatabase, err)
	}
	return Response{Success: true, Data: records}, nil
}

func (s *Service) createUser(ctx context.Context, req *request) (Response, error) {
	userdata := req.params.Map(ParamUserData)

	var missing []string
	for _, name := range requiredUserData {
		if _, ok := userdata[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return Response{}, failf("Required fields were missing for creating the user: %s", strings.Join(missing, ", "))
	}

	values := users.WritableValues(userdata)

	conflicts, err := s.users.FindConflicts(ctx, values["username"], values["email"], values["idnumber"])
	if err != nil {
		return Response{}, internal(MsgDatabase, err)
	}
	if len(conflicts) > 0 {
		subject := "Another user was"
		if len(conflicts) > 1 {
			subject = "Other users were"
		}
		return Response{}, failf("%s found with the same %s.", subject, andList(conflictFields(values, conflicts)))
	}

	values["password"] = users.UnsetPassword(req.now)
	if raw, ok := userdata["password"]; ok {
		hash, err := users.HashPassword(raw)
		if err != nil {
			s.log(ctx).WithError(err).Warn("Password hashing failed, creating user without a password")
		} else {
			values["password"] = hash
		}
	}

	stamp := fmt.Sprint(req.now.Unix())
	defaults := map[string]string{
		"auth":         users.AuthAPILogin,
		"confirmed":    "1",
		"timecreated":  stamp,
		"timemodified": stamp,
	}
	for name, value := range defaults {
		if _, ok := values[name]; !ok {
			values[name] = value
		}
	}

	id, err := s.users.Insert(ctx, values)
	if err != nil {
		return Response{}, internal(MsgDatabase, err)
	}

	s.log(ctx).WithField("userid", id).Info("User created")
	return Response{Success: true, Data: id}, nil
}

// conflictFields names the unique identifiers the new user shares with existing ones
func conflictFields(values map[string]string, conflicts []users.Identity) []string {
	var fields []string
	seen := make(map[string]bool)
	add := func(name string) {
		if !seen[name] {
			seen[name] = true
			fields = append(fields, name)
		}
	}

	for _, existing := range conflicts {
		if values["username"] == existing.Username {
			add("username")
		}
		if values["email"] == existing.Email {
			add("email")
		}
		if values["idnumber"] != "" && values["idnumber"] == existing.IDNumber {
			add("idnumber")
		}
	}
	return fields
}

// andList joins items as "a", "a and b" or "a, b, and c"
func andList(items []string) string {
	switch len(items) {
	case 0:
		return ""
	case 1:
		return items[0]
	case 2:
		return items[0] + " and " + items[1]
	default:
		return strings.Join(items[:len(items)-1], ", ") + ", and " + items[len(items)-1]
	}
}

func (s *Service) updateUser(ctx context.Context, req *request) (Response, error) {
	ident, err := s.resolve(ctx, req)
	if err != nil {
		return Response{}, err
	}

	values := users.WritableValues(req.params.Map(ParamUserData))
	if len(values) == 0 {
		return Response{}, failf("Missing any valid fields to update.")
	}

	updates := make(map[string]interface{}, len(values)+1)
	for name, value := range values {
		updates[name] = value
	}
	updates["timemodified"] = req.now.Unix()

	if err := s.update(ctx, req, ident.ID, updates); err != nil {
		return Response{}, err
	}
	return Response{Success: true, Data: ident.ID}, nil
}

func (s *Service) deleteUser(ctx context.Context, req *request) (Response, error) {
	ident, err := s.resolve(ctx, req)
	if err != nil {
		return Response{}, err
	}

	if req.settings.IsGuest(ident.ID, ident.Username) {
		return Response{}, failf("The guest account cannot be deleted.")
	}
	if req.settings.IsSiteAdmin(ident.ID) {
		return Response{}, failf("Local administrators cannot be deleted.")
	}

	suffix := fmt.Sprintf("/%d", req.now.Unix())
	updates := map[string]interface{}{
		"deleted":      1,
		"username":     ident.Username + suffix,
		"email":        ident.Email + suffix,
		"idnumber":     ident.IDNumber + suffix,
		"password":     users.DeletedPassword(req.now),
		"timemodified": req.now.Unix(),
	}
	if err := s.update(ctx, req, ident.ID, updates); err != nil {
		return Response{}, err
	}

	s.log(ctx).WithField("userid", ident.ID).Info("User deleted")
	return Response{Success: true, Data: ident.ID}, nil
}

func (s *Service) suspendUser(ctx context.Context, req *request) (Response, error) {
	return s.setSuspended(ctx, req, 1)
}

func (s *Service) unsuspendUser(ctx context.Context, req *request) (Response, error) {
	return s.setSuspended(ctx, req, 0)
}

func (s *Service) setSuspended(ctx context.Context, req *request, flag int) (Response, error) {
	ident, err := s.resolve(ctx, req)
	if err != nil {
		return Response{}, err
	}
	if err := s.update(ctx, req, ident.ID, map[string]interface{}{"suspended": flag}); err != nil {
		return Response{}, err
	}
	return Response{Success: true, Data: ident.ID}, nil
}

// update writes to a resolved user, mapping a vanished row to the lookup failure
func (s *Service) update(ctx context.Context, req *request, id int64, values map[string]interface{}) error {
	err := s.users.Update(ctx, id, values)
	if errors.Is(err, users.ErrNotFound) {
		return notFound(req.params[ParamUserIDField], req.params[ParamUserID])
	}
	if err != nil {
		return internal(MsgDatabase, err)
	}
	return nil
}
