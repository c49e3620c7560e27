package content

import "context"

// Stats counts the records shown on the dashboard.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	var (
		st  Stats
		err error
	)
	counts := []struct {
		recordType string
		dst        *int
	}{
		{postType, &st.Posts},
		{projectType, &st.Projects},
		{categoryType, &st.Categories},
		{userType, &st.Users},
	}
	for _, c := range counts {
		ids, listErr := s.repo.List(ctx, namespace, c.recordType)
		if listErr != nil {
			err = listErr
			break
		}
		*c.dst = len(ids)
	}
	return st, err
}
