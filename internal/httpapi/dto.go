package httpapi

import "varda/internal/domain"

// sampleDTO is the wire shape of a Sample, with a nested task summary
// exposing {task:{state, progress?, error?}} for resources driven by a
// background task.
type sampleDTO struct {
	ID              string       `json:"id"`
	Owner           string       `json:"owner"`
	Name            string       `json:"name"`
	PoolSize        int          `json:"pool_size"`
	CoverageProfile bool         `json:"coverage_profile"`
	Public          bool         `json:"public"`
	Active          bool         `json:"active"`
	Notes           string       `json:"notes"`
	GroupIDs        []string     `json:"group_ids,omitempty"`
	Task            *taskDTO     `json:"task,omitempty"`
}

func toSampleDTO(s domain.Sample) sampleDTO {
	return sampleDTO{
		ID:              s.ID,
		Owner:           s.Owner,
		Name:            s.Name,
		PoolSize:        s.PoolSize,
		CoverageProfile: s.CoverageProfile,
		Public:          s.Public,
		Active:          s.Active,
		Notes:           s.Notes,
		GroupIDs:        s.GroupIDs,
	}
}

type taskDTO struct {
	State    domain.TaskState `json:"state"`
	Progress float64          `json:"progress,omitempty"`
	Error    string           `json:"error,omitempty"`
}

func toTaskDTO(t domain.Task) taskDTO {
	return taskDTO{State: t.State, Progress: t.Progress, Error: t.Error}
}

type dataSourceDTO struct {
	ID        string            `json:"id"`
	Digest    string            `json:"digest"`
	FileType  domain.FileType   `json:"file_type"`
	Gzipped   bool              `json:"gzipped"`
	Owner     string            `json:"owner"`
	Size      int64             `json:"size"`
	CreatedAt string            `json:"created_at"`
}

func toDataSourceDTO(ds domain.DataSource) dataSourceDTO {
	return dataSourceDTO{
		ID:        ds.ID,
		Digest:    ds.Digest,
		FileType:  ds.FileType,
		Gzipped:   ds.Gzipped,
		Owner:     ds.Owner,
		Size:      ds.Size,
		CreatedAt: ds.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
	}
}

type annotationDTO struct {
	ID                    string             `json:"id"`
	OriginalDataSourceID  string             `json:"original_data_source_id"`
	AnnotatedDataSourceID string             `json:"annotated_data_source_id,omitempty"`
	Queries               []domain.NamedQuery `json:"queries"`
	Task                  *taskDTO           `json:"task,omitempty"`
}

func toAnnotationDTO(a domain.Annotation) annotationDTO {
	return annotationDTO{
		ID:                    a.ID,
		OriginalDataSourceID:  a.OriginalDataSourceID,
		AnnotatedDataSourceID: a.AnnotatedDataSourceID,
		Queries:               a.Queries,
	}
}

type groupDTO struct {
	ID        string   `json:"id"`
	Owner     string   `json:"owner"`
	Name      string   `json:"name"`
	SampleIDs []string `json:"sample_ids,omitempty"`
}

func toGroupDTO(g domain.Group) groupDTO {
	return groupDTO{ID: g.ID, Owner: g.Owner, Name: g.Name, SampleIDs: g.SampleIDs}
}

type userDTO struct {
	ID    string   `json:"id"`
	Login string   `json:"login"`
	Roles []string `json:"roles,omitempty"`
}

func toUserDTO(u domain.User) userDTO {
	roles := make([]string, len(u.Roles))
	for i, r := range u.Roles {
		roles[i] = string(r)
	}
	return userDTO{ID: u.ID, Login: u.Login, Roles: roles}
}
